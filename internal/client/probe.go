package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/thammuio/flowgate/internal/constants"
	flowhttp "github.com/thammuio/flowgate/internal/http"
	"github.com/thammuio/flowgate/pkg/flow"
)

const aboutPath = "/flow/about"

// aboutEnvelope is the wire envelope for the version probe endpoint.
type aboutEnvelope struct {
	About flow.About `json:"about"`
}

// versionProbe discovers which request shapes the service supports by
// reading its version and deriving a capability snapshot. A successful
// probe is kept for the client lifetime; a failed probe is not, so the
// next caller may try again. Concurrent probes collapse into one request.
type versionProbe struct {
	httpClient *flowhttp.Client
	logger     flow.Logger
	cache      *flow.CacheManager
	cacheKey   string

	group singleflight.Group

	mu       sync.RWMutex
	snapshot *flow.Capabilities
}

func newVersionProbe(httpClient *flowhttp.Client, logger flow.Logger, cache *flow.CacheManager, baseURL string) *versionProbe {
	return &versionProbe{
		httpClient: httpClient,
		logger:     logger,
		cache:      cache,
		cacheKey:   "capabilities:" + baseURL,
	}
}

// About reads raw version and build information from the service.
func (p *versionProbe) About(ctx context.Context) (*flow.About, error) {
	resp, err := p.httpClient.Get(ctx, aboutPath, nil)
	if err != nil {
		return nil, fmt.Errorf("getting service about: %w", err)
	}

	var envelope aboutEnvelope

	err = json.Unmarshal(resp.Body, &envelope)
	if err != nil {
		return nil, fmt.Errorf("parsing about response: %w", err)
	}

	return &envelope.About, nil
}

// Capabilities returns the current snapshot, probing on first use.
func (p *versionProbe) Capabilities(ctx context.Context) (*flow.Capabilities, error) {
	p.mu.RLock()
	snapshot := p.snapshot
	p.mu.RUnlock()

	if snapshot != nil {
		return snapshot, nil
	}

	return p.probe(ctx, false)
}

// Reprobe forces a fresh probe and atomically replaces the snapshot.
func (p *versionProbe) Reprobe(ctx context.Context) (*flow.Capabilities, error) {
	return p.probe(ctx, true)
}

func (p *versionProbe) probe(ctx context.Context, force bool) (*flow.Capabilities, error) {
	result, err, _ := p.group.Do("probe", func() (interface{}, error) {
		if force {
			p.dropCached(ctx)
		} else {
			p.mu.RLock()
			snapshot := p.snapshot
			p.mu.RUnlock()

			if snapshot != nil {
				return snapshot, nil
			}

			if cached := p.cachedSnapshot(ctx); cached != nil {
				p.install(cached)

				return cached, nil
			}
		}

		about, aboutErr := p.About(ctx)
		if aboutErr != nil {
			p.warn("capability probe failed", aboutErr)

			return nil, fmt.Errorf("%w: %w", flow.ErrUnknownCapability, aboutErr)
		}

		capabilities := flow.CapabilitiesForVersion(about.Version)
		if !capabilities.Known {
			p.warn("capability probe returned an unusable version", nil)

			return nil, fmt.Errorf("%w: unparsable service version %q", flow.ErrUnknownCapability, about.Version)
		}

		p.install(capabilities)
		p.storeSnapshot(ctx, capabilities)

		if p.logger != nil {
			p.logger.Debug("capability probe", map[string]interface{}{
				"version":       capabilities.Version,
				"major_version": capabilities.MajorVersion,
			})
		}

		return capabilities, nil
	})
	if err != nil {
		return flow.UnknownCapabilities(), err
	}

	capabilities, ok := result.(*flow.Capabilities)
	if !ok {
		return flow.UnknownCapabilities(), flow.ErrUnknownCapability
	}

	return capabilities, nil
}

// install replaces the snapshot wholesale.
func (p *versionProbe) install(capabilities *flow.Capabilities) {
	p.mu.Lock()
	p.snapshot = capabilities
	p.mu.Unlock()
}

// cachedSnapshot loads a capability snapshot probed by another process.
func (p *versionProbe) cachedSnapshot(ctx context.Context) *flow.Capabilities {
	if p.cache == nil {
		return nil
	}

	data, err := p.cache.Get(ctx, p.cacheKey)
	if err != nil {
		return nil
	}

	var capabilities flow.Capabilities

	err = json.Unmarshal(data, &capabilities)
	if err != nil || !capabilities.Known {
		return nil
	}

	return &capabilities
}

// storeSnapshot shares a probed snapshot with other processes.
func (p *versionProbe) storeSnapshot(ctx context.Context, capabilities *flow.Capabilities) {
	if p.cache == nil {
		return
	}

	data, err := json.Marshal(capabilities)
	if err != nil {
		return
	}

	_ = p.cache.Set(ctx, p.cacheKey, data, constants.CapabilitiesCacheTTL)
}

// dropCached invalidates the shared snapshot and any cached about
// response so a forced probe reaches the service.
func (p *versionProbe) dropCached(ctx context.Context) {
	if p.cache == nil {
		return
	}

	_ = p.cache.Invalidate(ctx, p.cacheKey)
	_ = p.cache.Invalidate(ctx, p.cache.GetCacheKey(http.MethodGet, aboutPath, nil))
}

func (p *versionProbe) warn(msg string, err error) {
	if p.logger == nil {
		return
	}

	fields := map[string]interface{}{}
	if err != nil {
		fields["error"] = err.Error()
	}

	p.logger.Warn(msg, fields)
}
