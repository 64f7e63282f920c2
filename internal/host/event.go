package host

// Event reports a changed attribute value.
type Event struct {
	Device    string  `json:"device"`
	Attribute string  `json:"attribute"`
	Value     any     `json:"value"`
	Timestamp float64 `json:"timestamp"`
	Quality   Quality `json:"quality"`
}

// Publisher receives change events from the poller.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(e Event) { f(e) }
