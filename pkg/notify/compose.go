package notify

// ComposeOption customises a composed payload.
type ComposeOption func(*Payload)

// WithoutSound disables the notification sound.
func WithoutSound() ComposeOption {
	return func(p *Payload) {
		p.Sound = ""
	}
}

// Compose builds a gateway-ready payload. It is a pure function: no I/O, no
// shared state, and the input data map is copied rather than retained.
// The typ discriminator always overrides any "type" key in data.
func Compose(title, body string, typ DataType, data map[string]string, opts ...ComposeOption) Payload {
	p := Payload{
		Title:       title,
		Body:        body,
		Sound:       DefaultSound,
		ClickAction: ClickAction,
		Data:        make(map[string]string, len(data)+1),
	}
	for k, v := range data {
		p.Data[k] = v
	}
	p.Data[DataKeyType] = string(typ)

	for _, opt := range opts {
		opt(&p)
	}
	return p
}
