package pest

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/teranos/protohackd/internal/logger"
	"github.com/teranos/protohackd/internal/xerrors"
)

// policyKey identifies one (site, species) pair in the policy table.
type policyKey struct {
	site    uint32
	species string
}

type policyState struct {
	policy uint32
	action byte
}

// Registry holds every site's cached authority connection and the
// process-wide (site, species) -> policy table.
type Registry struct {
	mu       sync.Mutex
	policies map[policyKey]policyState

	authMu       sync.Mutex
	auth         map[uint32]*authoritySession
	upstreamAddr string
	sf           singleflight.Group

	log *zap.SugaredLogger
}

// NewRegistry creates a Registry dialing upstreamAddr lazily, one
// connection per site, the first time that site is visited.
func NewRegistry(upstreamAddr string) *Registry {
	return &Registry{
		upstreamAddr: upstreamAddr,
		policies:     make(map[policyKey]policyState),
		auth:         make(map[uint32]*authoritySession),
		log:          logger.Named("pest"),
	}
}

// SetUpstreamAddr updates the address used for future site dials (e.g. on
// a hot-reloaded config); sites already connected keep their existing
// cached connection until it closes.
func (r *Registry) SetUpstreamAddr(addr string) {
	r.authMu.Lock()
	defer r.authMu.Unlock()
	r.upstreamAddr = addr
}

// authorityFor returns the cached authority session for site, connecting
// it on first use. golang.org/x/sync/singleflight collapses concurrent
// SiteVisit goroutines for the same brand-new site into one dial, so only
// one connection per site is ever created without a second ad hoc mutex
// layered on the policy table's.
func (r *Registry) authorityFor(ctx context.Context, site uint32) (*authoritySession, error) {
	r.authMu.Lock()
	if s, ok := r.auth[site]; ok {
		r.authMu.Unlock()
		return s, nil
	}
	r.authMu.Unlock()

	v, err, _ := r.sf.Do(strconv.FormatUint(uint64(site), 10), func() (interface{}, error) {
		r.authMu.Lock()
		if s, ok := r.auth[site]; ok {
			r.authMu.Unlock()
			return s, nil
		}
		addr := r.upstreamAddr
		r.authMu.Unlock()

		s, err := dialAuthority(ctx, addr, site)
		if err != nil {
			return nil, err
		}
		r.authMu.Lock()
		r.auth[site] = s
		r.authMu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*authoritySession), nil
}

// desiredAction computes CONSERVE/CULL/none for one target given an
// observed count.
func desiredAction(t target, count uint32) (byte, bool) {
	if count < t.min {
		return actionConserve, true
	}
	if count > t.max {
		return actionCull, true
	}
	return 0, false
}

// HandleSiteVisit implements the full SiteVisit algorithm: duplicate-count
// validation, zero-filling absent species, connecting (or reusing) the
// site's upstream authority, and reconciling the policy table via
// CreatePolicy/DeletePolicy.
func (r *Registry) HandleSiteVisit(ctx context.Context, site uint32, counts []populationCount) error {
	observed := make(map[string]uint32, len(counts))
	for _, c := range counts {
		if prior, seen := observed[c.species]; seen && prior != c.count {
			return xerrors.Wrapf(xerrors.ErrProtocolViolation,
				"conflicting counts for species %q at site %d", c.species, site)
		}
		observed[c.species] = c.count
	}

	auth, err := r.authorityFor(ctx, site)
	if err != nil {
		return err
	}

	for species, t := range auth.targets {
		count := observed[species] // species this site never reported default to 0
		action, wantPolicy := desiredAction(t, count)
		if err := r.reconcile(auth, site, species, action, wantPolicy); err != nil {
			return err
		}
	}
	return nil
}

// reconcile applies the four-way create/delete/replace/no-op table for
// one species against its current policy, if any.
func (r *Registry) reconcile(auth *authoritySession, site uint32, species string, action byte, wantPolicy bool) error {
	key := policyKey{site: site, species: species}

	r.mu.Lock()
	existing, hasPolicy := r.policies[key]
	r.mu.Unlock()

	switch {
	case !wantPolicy && hasPolicy:
		if err := auth.deletePolicy(existing.policy); err != nil {
			return err
		}
		r.mu.Lock()
		delete(r.policies, key)
		r.mu.Unlock()

	case wantPolicy && !hasPolicy:
		id, err := auth.createPolicy(species, action)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.policies[key] = policyState{policy: id, action: action}
		r.mu.Unlock()

	case wantPolicy && hasPolicy && existing.action != action:
		if err := auth.deletePolicy(existing.policy); err != nil {
			return err
		}
		id, err := auth.createPolicy(species, action)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.policies[key] = policyState{policy: id, action: action}
		r.mu.Unlock()

	default:
		// wantPolicy && hasPolicy && existing.action == action: no-op.
	}
	return nil
}
