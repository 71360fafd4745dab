package controllers

import (
	"encoding/json"

	"github.com/rzbill/bgq/internal/taskstore"
)

// addTaskReq is the body of POST /v1/queue/tasks.
type addTaskReq struct {
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data"`
	GroupStart     string          `json:"groupStart"`
	BlockingGroups []string        `json:"blockingGroups"`
}

type statusResp struct {
	NumTasksInQueue int    `json:"numTasksInQueue"`
	PausedUntil     string `json:"pausedUntil,omitempty"`
}

// itemView is an inventory item with its creation time rendered.
type itemView struct {
	TaskID         string   `json:"taskId"`
	Type           string   `json:"type"`
	CreatedAt      string   `json:"createdAt"`
	OrderKey       string   `json:"orderKey"`
	GroupStart     string   `json:"groupStart,omitempty"`
	BlockingGroups []string `json:"blockingGroups,omitempty"`
}

func newItemView(it taskstore.InventoryItem) itemView {
	return itemView{
		TaskID:         it.TaskID,
		Type:           it.Type,
		CreatedAt:      formatTime(it.CreatedAt),
		OrderKey:       it.OrderKey.String(),
		GroupStart:     it.GroupStart,
		BlockingGroups: it.BlockingGroups,
	}
}

type inventoryResp struct {
	Items []itemView `json:"items"`
}

// queueEvent is one server-sent event on /v1/queue/events.
type queueEvent struct {
	Name string
	Data any
}
