package medreserve

import (
	"testing"

	"github.com/google/uuid"
)

func TestComputeRootDeterministic(t *testing.T) {
	root1 := ComputeRoot("reservation", "r-1")
	root2 := ComputeRoot("reservation", "r-1")

	if root1 != root2 {
		t.Errorf("same inputs should produce same root: %s != %s", root1, root2)
	}
}

func TestComputeRootDifferentDomains(t *testing.T) {
	if ComputeRoot("reservation", "x") == ComputeRoot("prescription", "x") {
		t.Error("different domains should produce different roots")
	}
}

func TestInventoryRootDeterministic(t *testing.T) {
	if InventoryRoot("p1", "m1") != InventoryRoot("p1", "m1") {
		t.Error("same pair should produce same root")
	}
	if InventoryRoot("p1", "m1") == InventoryRoot("p1", "m2") {
		t.Error("different medicines should produce different roots")
	}
	if InventoryRoot("p1", "m1") == InventoryRoot("p2", "m1") {
		t.Error("different pharmacies should produce different roots")
	}
}

func TestNewID_isUUID(t *testing.T) {
	if _, err := uuid.Parse(NewID()); err != nil {
		t.Errorf("expected uuid, got error %v", err)
	}
}
