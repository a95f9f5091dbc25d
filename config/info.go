package config

const (
	ServiceName    = "ssi-holder"
	ServiceVersion = "0.1.0"
	Description    = "A wallet that answers OpenID for Verifiable Presentations requests with the credentials it holds."
)
