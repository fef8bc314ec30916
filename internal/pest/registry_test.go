package pest

import (
	"bufio"
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/protohackd/internal/codec"
	"github.com/teranos/protohackd/internal/logger"
)

// decodeCreatePolicy/encodePolicyResult/decodeDeletePolicy are the
// authority side of the CreatePolicy/DeletePolicy exchange; the pest
// package only needs the client side, so the fake authority below decodes
// requests and encodes responses by hand.
func decodeCreatePolicy(payload []byte) (string, byte, error) {
	r := bytes.NewReader(payload)
	species, err := codec.ReadLPString32(r)
	if err != nil {
		return "", 0, err
	}
	action, err := codec.ReadUint8(r)
	if err != nil {
		return "", 0, err
	}
	return species, action, nil
}

func encodePolicyResult(policy uint32) []byte {
	var b bytes.Buffer
	w := bufio.NewWriter(&b)
	_ = codec.WriteUint32(w, policy)
	_ = w.Flush()
	return b.Bytes()
}

func decodeDeletePolicy(payload []byte) (uint32, error) {
	return codec.ReadUint32(bytes.NewReader(payload))
}

// fakeAuthority serves CreatePolicy/DeletePolicy requests on the server
// half of a net.Pipe, assigning sequential policy ids and recording every
// request it sees for assertions.
type fakeAuthority struct {
	created []string // "species/action" per CreatePolicy call
	deleted []uint32
}

func (f *fakeAuthority) serve(conn net.Conn) {
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	var nextPolicy uint32 = 1
	for {
		code, payload, err := readFrame(r)
		if err != nil {
			return
		}
		switch code {
		case codeCreatePolicy:
			species, action, err := decodeCreatePolicy(payload)
			if err != nil {
				return
			}
			f.created = append(f.created, species+"/"+string(action))
			id := nextPolicy
			nextPolicy++
			_ = writeFrame(w, codePolicyResult, encodePolicyResult(id))
		case codeDeletePolicy:
			policy, err := decodeDeletePolicy(payload)
			if err != nil {
				return
			}
			f.deleted = append(f.deleted, policy)
			_ = writeFrame(w, codeOK, nil)
		default:
			return
		}
	}
}

func newTestAuthority(t *testing.T, site uint32, targets map[string]target) (*Registry, *fakeAuthority) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	fake := &fakeAuthority{}
	go fake.serve(serverConn)
	t.Cleanup(func() { clientConn.Close(); serverConn.Close() })

	auth := &authoritySession{
		site:    site,
		conn:    clientConn,
		r:       bufio.NewReader(clientConn),
		w:       bufio.NewWriter(clientConn),
		targets: targets,
		log:     logger.Named("pest-test"),
	}
	reg := NewRegistry("unused")
	reg.auth[site] = auth
	return reg, fake
}

func TestHandleSiteVisitCreatesPolicyBelowMin(t *testing.T) {
	reg, fake := newTestAuthority(t, 1, map[string]target{
		"Dog": {species: "Dog", min: 5, max: 10},
	})

	err := reg.HandleSiteVisit(nil, 1, []populationCount{{species: "Dog", count: 2}})
	require.NoError(t, err)

	require.Len(t, fake.created, 1)
	assert.Equal(t, policyState{policy: 1, action: actionConserve}, reg.policies[policyKey{site: 1, species: "Dog"}])
}

func TestHandleSiteVisitCreatesPolicyAboveMax(t *testing.T) {
	reg, fake := newTestAuthority(t, 1, map[string]target{
		"Rat": {species: "Rat", min: 0, max: 10},
	})

	err := reg.HandleSiteVisit(nil, 1, []populationCount{{species: "Rat", count: 50}})
	require.NoError(t, err)

	require.Len(t, fake.created, 1)
	assert.Equal(t, policyState{policy: 1, action: actionCull}, reg.policies[policyKey{site: 1, species: "Rat"}])
}

func TestHandleSiteVisitNoPolicyWithinRange(t *testing.T) {
	reg, fake := newTestAuthority(t, 1, map[string]target{
		"Cat": {species: "Cat", min: 1, max: 5},
	})

	err := reg.HandleSiteVisit(nil, 1, []populationCount{{species: "Cat", count: 3}})
	require.NoError(t, err)

	assert.Empty(t, fake.created)
	_, hasPolicy := reg.policies[policyKey{site: 1, species: "Cat"}]
	assert.False(t, hasPolicy)
}

func TestHandleSiteVisitDeletesPolicyOnceBackInRange(t *testing.T) {
	reg, fake := newTestAuthority(t, 1, map[string]target{
		"Dog": {species: "Dog", min: 5, max: 10},
	})
	reg.policies[policyKey{site: 1, species: "Dog"}] = policyState{policy: 7, action: actionConserve}

	err := reg.HandleSiteVisit(nil, 1, []populationCount{{species: "Dog", count: 7}})
	require.NoError(t, err)

	assert.Empty(t, fake.created)
	require.Equal(t, []uint32{7}, fake.deleted)
	_, hasPolicy := reg.policies[policyKey{site: 1, species: "Dog"}]
	assert.False(t, hasPolicy)
}

func TestHandleSiteVisitReplacesPolicyWhenActionFlips(t *testing.T) {
	reg, fake := newTestAuthority(t, 1, map[string]target{
		"Dog": {species: "Dog", min: 5, max: 10},
	})
	reg.policies[policyKey{site: 1, species: "Dog"}] = policyState{policy: 3, action: actionConserve}

	err := reg.HandleSiteVisit(nil, 1, []populationCount{{species: "Dog", count: 99}})
	require.NoError(t, err)

	require.Equal(t, []uint32{3}, fake.deleted)
	require.Len(t, fake.created, 1)
	assert.Equal(t, policyState{policy: 1, action: actionCull}, reg.policies[policyKey{site: 1, species: "Dog"}])
}

func TestHandleSiteVisitRejectsConflictingDuplicateCounts(t *testing.T) {
	reg, _ := newTestAuthority(t, 1, map[string]target{
		"Dog": {species: "Dog", min: 5, max: 10},
	})

	err := reg.HandleSiteVisit(nil, 1, []populationCount{
		{species: "Dog", count: 2},
		{species: "Dog", count: 3},
	})
	assert.Error(t, err)
}

func TestHandleSiteVisitAbsentSpeciesDefaultsToZero(t *testing.T) {
	reg, fake := newTestAuthority(t, 1, map[string]target{
		"Dog": {species: "Dog", min: 1, max: 10},
	})

	err := reg.HandleSiteVisit(nil, 1, nil)
	require.NoError(t, err)

	require.Len(t, fake.created, 1)
	assert.Equal(t, policyState{policy: 1, action: actionConserve}, reg.policies[policyKey{site: 1, species: "Dog"}])
}
