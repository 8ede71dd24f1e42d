package audit

// WithResource sets the resource type and ID.
func WithResource(resource, id string) EventOption {
	return func(e *Event) {
		e.Resource = resource
		e.ResourceID = id
	}
}

// WithMetadata adds metadata to the event.
func WithMetadata(key string, value any) EventOption {
	return func(e *Event) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[key] = value
	}
}

// WithResult overrides the event result.
func WithResult(result Result) EventOption {
	return func(e *Event) {
		e.Result = result
	}
}

// WithUserID sets the acting user explicitly.
func WithUserID(id string) EventOption {
	return func(e *Event) {
		if id != "" {
			e.UserID = id
		}
	}
}

// WithIP records the client address.
func WithIP(ip string) EventOption {
	return func(e *Event) {
		if ip != "" {
			e.IP = ip
		}
	}
}
