package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ConversationType distinguishes private threads from apartment threads.
type ConversationType string

const (
	ConversationDirect         ConversationType = "Direct"
	ConversationGroupApartment ConversationType = "GroupApartment"
)

// ChatType is the message-level counterpart of ConversationType.
type ChatType string

const (
	ChatDirect         ChatType = "Direct"
	ChatApartmentGroup ChatType = "ApartmentGroup"
)

// MessageType separates plain messages from announcements.
type MessageType string

const (
	MessageText         MessageType = "Text"
	MessageAnnouncement MessageType = "Announcement"
)

var chatTypeOrdinals = []ChatType{ChatDirect, ChatApartmentGroup}

var messageTypeOrdinals = []MessageType{MessageText, MessageAnnouncement}

func (t ChatType) Valid() bool {
	return t == ChatDirect || t == ChatApartmentGroup
}

// ConversationType maps a chat type onto the conversation it belongs to.
func (t ChatType) ConversationType() ConversationType {
	if t == ChatApartmentGroup {
		return ConversationGroupApartment
	}
	return ConversationDirect
}

// UnmarshalJSON accepts the string name or the numeric ordinal. null leaves
// the value untouched and "" decodes to the zero value.
func (t *ChatType) UnmarshalJSON(data []byte) error {
	v, err := decodeEnum(data, len(chatTypeOrdinals))
	if err != nil {
		return fmt.Errorf("chat type: %w", err)
	}
	switch v := v.(type) {
	case nil:
		return nil
	case int:
		*t = chatTypeOrdinals[v]
		return nil
	}
	ct := ChatType(v.(string))
	if ct != "" && !ct.Valid() {
		return fmt.Errorf("chat type: unknown value %q", ct)
	}
	*t = ct
	return nil
}

func (t MessageType) Valid() bool {
	return t == MessageText || t == MessageAnnouncement
}

// UnmarshalJSON mirrors ChatType.UnmarshalJSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	v, err := decodeEnum(data, len(messageTypeOrdinals))
	if err != nil {
		return fmt.Errorf("message type: %w", err)
	}
	switch v := v.(type) {
	case nil:
		return nil
	case int:
		*t = messageTypeOrdinals[v]
		return nil
	}
	mt := MessageType(v.(string))
	if mt != "" && !mt.Valid() {
		return fmt.Errorf("message type: unknown value %q", mt)
	}
	*t = mt
	return nil
}

// decodeEnum returns an int ordinal below max, a string name, or nil for a
// JSON null.
func decodeEnum(data []byte, max int) (any, error) {
	if string(data) == "null" {
		return nil, nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return s, nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return nil, fmt.Errorf("invalid value %s", data)
	}
	if n < 0 || n >= max {
		return nil, fmt.Errorf("ordinal %d out of range", n)
	}
	return n, nil
}
