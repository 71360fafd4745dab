package tasks

// Group names an ordering group. A group is open while the task that started
// it is still queued.
type Group string

// IdentifiedProfile is opened by identifying a profile; tasks about that
// profile wait on it.
func IdentifiedProfile(identifier string) Group {
	return Group("identified_profile_" + identifier)
}

// RegisteredPushToken is opened by registering a device token; deleting the
// token waits on it.
func RegisteredPushToken(token string) Group {
	return Group("registered_push_token_" + token)
}

func (g Group) String() string { return string(g) }

// Strings converts groups to their stored form.
func Strings(groups ...Group) []string {
	if len(groups) == 0 {
		return nil
	}
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = string(g)
	}
	return out
}
