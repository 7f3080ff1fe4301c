package orchestration

import "github.com/koscakluka/ema-tutor/core/events"

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}
