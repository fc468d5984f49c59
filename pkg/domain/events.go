package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// EventKind defines the category of a change event.
type EventKind string

const (
	EventAdded              EventKind = "added"
	EventRemoved            EventKind = "removed"
	EventChanged            EventKind = "changed"
	EventStructureChanged   EventKind = "structure_changed"
	EventGroupChanged       EventKind = "group_changed"
	EventGroupingKeyChanged EventKind = "grouping_key_changed"
	EventReset              EventKind = "reset"
)

// Valid reports whether k is one of the known event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case EventAdded, EventRemoved, EventChanged, EventStructureChanged,
		EventGroupChanged, EventGroupingKeyChanged, EventReset:
		return true
	}
	return false
}

// Event is a change notification emitted by a contributor.
// Contributor names the contributor class that owns the affected branch.
type Event struct {
	Kind        EventKind
	Target      Value
	Parent      Value // Added only; nil means a top-level service
	Contributor string
}

// Added builds an EventAdded. parent may be nil.
func Added(target, parent Value, contributor string) Event {
	return Event{Kind: EventAdded, Target: target, Parent: parent, Contributor: contributor}
}

// Removed builds an EventRemoved.
func Removed(target Value, contributor string) Event {
	return Event{Kind: EventRemoved, Target: target, Contributor: contributor}
}

// Changed builds an EventChanged.
func Changed(target Value, contributor string) Event {
	return Event{Kind: EventChanged, Target: target, Contributor: contributor}
}

// StructureChanged builds an EventStructureChanged.
func StructureChanged(target Value, contributor string) Event {
	return Event{Kind: EventStructureChanged, Target: target, Contributor: contributor}
}

// GroupChanged builds an EventGroupChanged.
func GroupChanged(target Value, contributor string) Event {
	return Event{Kind: EventGroupChanged, Target: target, Contributor: contributor}
}

// GroupingKeyChanged builds an EventGroupingKeyChanged for a group key.
func GroupingKeyChanged(key Value, contributor string) Event {
	return Event{Kind: EventGroupingKeyChanged, Target: key, Contributor: contributor}
}

// Reset builds an EventReset for a contributor class.
func Reset(contributor string) Event {
	return Event{Kind: EventReset, Contributor: contributor}
}

func (e Event) String() string {
	if e.Target == nil {
		return fmt.Sprintf("%s(%s)", e.Kind, e.Contributor)
	}
	return fmt.Sprintf("%s(%s, %s)", e.Kind, e.Target.ID(), e.Contributor)
}

// wireEvent is the JSON form of Event. Values travel as IDs.
type wireEvent struct {
	Kind        EventKind `json:"kind"`
	Target      string    `json:"target,omitempty"`
	Parent      string    `json:"parent,omitempty"`
	Contributor string    `json:"contributor"`
}

// MarshalJSON encodes values by ID.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{Kind: e.Kind, Contributor: e.Contributor}
	if e.Target != nil {
		w.Target = e.Target.ID()
	}
	if e.Parent != nil {
		w.Parent = e.Parent.ID()
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes values as Refs.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", w.Kind)
	}
	*e = Event{Kind: w.Kind, Contributor: w.Contributor}
	if w.Target != "" {
		e.Target = Ref(w.Target)
	}
	if w.Parent != "" {
		e.Parent = Ref(w.Parent)
	}
	return nil
}

// AppliedEvent reports an event that was fully applied to the tree.
type AppliedEvent struct {
	Event     Event
	Duration  time.Duration
	Timestamp time.Time
}

// LoadEvent reports a lazy children load.
type LoadEvent struct {
	ItemID      string
	Contributor string
	Children    int
	Duration    time.Duration
	Err         error
}

// LifecycleHooks defines callbacks for model observability.
// Hooks run on the model executor and must not block.
type LifecycleHooks struct {
	OnEventApplied    func(context.Context, *AppliedEvent)
	OnLoad            func(context.Context, *LoadEvent)
	OnProviderFailure func(context.Context, *ProviderError)
}
