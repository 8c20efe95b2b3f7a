package memstore

import (
	"testing"

	"xdao.co/nref/storage"
	"xdao.co/nref/storage/testkit"
)

func TestMemStore_Conformance(t *testing.T) {
	testkit.RunStoreConformance(t, func(t *testing.T) storage.Store {
		return New()
	})
}
