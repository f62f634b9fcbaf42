package tracing

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys for dialog resolution.
const (
	AttrProduct  = attribute.Key("dm.product")
	AttrLogID    = attribute.Key("dm.log_id")
	AttrDomain   = attribute.Key("dm.domain")
	AttrIntent   = attribute.Key("dm.intent")
	AttrState    = attribute.Key("dm.state")
	AttrAffinity = attribute.Key("dm.affinity")
	AttrVersion  = attribute.Key("dm.ruleset_version")
	AttrService  = attribute.Key("dm.remote_service")
)
