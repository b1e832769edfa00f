package core

import "sync"

// EventContext carries a small payload with a fired event. Only the fields
// relevant to the code are expected to be populated.
type EventContext struct {
	Data struct {
		U64 [2]uint64
		U32 [4]uint32
		F64 [2]float64
		C   [2]string
	}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// A frame's GPU work was confirmed complete.
	/* Context usage:
	 * u64 frame_number = data.data.u64[0];
	 */
	EVENT_CODE_FRAME_COMPLETED SystemEventCode = 0x02

	// Retired resources were physically released.
	/* Context usage:
	 * u32 released_count = data.data.u32[0];
	 * u64 completed_frame = data.data.u64[0];
	 */
	EVENT_CODE_RESOURCES_RECLAIMED SystemEventCode = 0x03

	// The engine config file changed on disk and was re-read.
	/* Context usage:
	 * c path = data.data.c[0];
	 */
	EVENT_CODE_CONFIG_RELOADED SystemEventCode = 0x04

	// A new descriptor table version became visible.
	/* Context usage:
	 * u64 version = data.data.u64[0];
	 */
	EVENT_CODE_DESCRIPTOR_TABLE_PUBLISHED SystemEventCode = 0x05

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type FnOnEvent func(code SystemEventCode, sender interface{}, context EventContext)

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

type eventSystemState struct {
	mutex      sync.RWMutex
	registered map[SystemEventCode][]*registeredEvent
}

var onceEvents sync.Once
var eventState *eventSystemState

func EventSystemInitialize() bool {
	onceEvents.Do(func() {
		eventState = &eventSystemState{
			registered: make(map[SystemEventCode][]*registeredEvent),
		}
	})
	return true
}

func EventSystemShutdown() {
	if eventState == nil {
		return
	}
	eventState.mutex.Lock()
	eventState.registered = make(map[SystemEventCode][]*registeredEvent)
	eventState.mutex.Unlock()
}

// EventRegister subscribes the callback to the given code. Duplicate
// listener/callback pairs for a code are not detected; the caller owns
// registering once.
func EventRegister(code SystemEventCode, listener interface{}, callback FnOnEvent) bool {
	if eventState == nil {
		LogWarn("EventRegister called before event system initialization")
		return false
	}
	eventState.mutex.Lock()
	defer eventState.mutex.Unlock()
	eventState.registered[code] = append(eventState.registered[code], &registeredEvent{
		listener: listener,
		callback: callback,
	})
	return true
}

// EventFire notifies every listener registered for the code, on the
// caller's goroutine.
func EventFire(code SystemEventCode, sender interface{}, context EventContext) bool {
	if eventState == nil {
		return false
	}
	eventState.mutex.RLock()
	listeners := eventState.registered[code]
	eventState.mutex.RUnlock()
	if len(listeners) == 0 {
		return false
	}
	for _, re := range listeners {
		re.callback(code, sender, context)
	}
	return true
}
