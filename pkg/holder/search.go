package holder

import (
	"context"
	"reflect"

	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-holder/internal/util"
	"github.com/tbd54566975/ssi-holder/pkg/credential"
	"github.com/tbd54566975/ssi-holder/pkg/oid4vp"
)

// credentialSource is where candidate credentials come from: an explicit list or a store.
type credentialSource interface {
	candidates(ctx context.Context) ([]credential.Parsed, error)
	kind() string
}

// explicitList is exclusive: the store is never consulted when a list is given.
type explicitList []credential.Parsed

func (l explicitList) candidates(context.Context) ([]credential.Parsed, error) {
	return l, nil
}

func (explicitList) kind() string {
	return "explicit"
}

type storeBacked struct {
	store credential.Store
}

func (s storeBacked) candidates(ctx context.Context) ([]credential.Parsed, error) {
	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		return nil, newError(CredentialStoreAccess, err)
	}
	parsed := make([]credential.Parsed, 0, len(ids))
	for _, id := range ids {
		stored, err := s.store.Get(ctx, id)
		if err != nil {
			logrus.WithError(err).Debugf("skipping credential<%s>: could not be fetched", util.SanitizeLog(id))
			continue
		}
		if stored == nil {
			logrus.Debugf("skipping credential<%s>: no longer stored", util.SanitizeLog(id))
			continue
		}
		c, err := s.store.Parse(*stored)
		if err != nil {
			logrus.WithError(err).Debugf("skipping credential<%s>: could not be parsed", util.SanitizeLog(id))
			continue
		}
		parsed = append(parsed, c)
	}
	return parsed, nil
}

func (storeBacked) kind() string {
	return "store"
}

// searchCredentials returns every candidate satisfying def, once each, in source order. Distinct credentials that
// share an id are all kept.
func (h *Holder) searchCredentials(ctx context.Context, def *oid4vp.PresentationDefinition) ([]credential.Parsed, error) {
	ctx, span := h.tracer.Start(ctx, "searchCredentials")
	defer span.End()

	candidates, err := h.source.candidates(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]credential.Parsed, 0)
	for i, c := range candidates {
		if listedBefore(candidates[:i], c) {
			continue
		}
		if !credential.Matches(c, def) {
			continue
		}
		matched = append(matched, c)
	}
	return matched, nil
}

func listedBefore(earlier []credential.Parsed, c credential.Parsed) bool {
	for _, e := range earlier {
		if sameCredential(e, c) {
			return true
		}
	}
	return false
}

// sameCredential reports whether a and b are the same credential object.
func sameCredential(a, b credential.Parsed) bool {
	ta := reflect.TypeOf(a)
	if ta == nil || ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}
