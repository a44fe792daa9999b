package renderer

import (
	"log"

	"github.com/jdmedia/newsreel/internal/models"
)

// Dispatcher picks the provider for a payload's renderer config.
type Dispatcher struct {
	providers map[models.RendererType]Provider
	local     Provider
}

// NewDispatcher builds a dispatcher over the registered providers. The
// local provider doubles as the fallback for unknown renderer types.
func NewDispatcher(local Provider, providers map[models.RendererType]Provider) *Dispatcher {
	all := map[models.RendererType]Provider{models.RendererLocal: local}
	for kind, p := range providers {
		all[kind] = p
	}
	return &Dispatcher{providers: all, local: local}
}

// Resolve maps a renderer type to its provider. A type we have never
// heard of gets a warning and the local renderer; a type we recognize but
// have not configured resolves to its unconfigured stub, which fails the
// job with a descriptive error.
func (d *Dispatcher) Resolve(kind models.RendererType) Provider {
	if kind == "" {
		kind = models.RendererLocal
	}
	if p, ok := d.providers[kind]; ok {
		return p
	}
	if _, recognized := models.SupportedRenderers[kind]; recognized {
		return NewUnconfiguredProvider(string(kind), "no client registered for this renderer")
	}
	log.Printf("[Dispatch] Unknown renderer type %q, falling back to local", kind)
	return d.local
}
