package cache

import "testing"

func TestKey_Deterministic(t *testing.T) {
	a := Key{BaseID: "appABCDEFGHIJKLMN", TableID: "tblABCDEFGHIJKLMN", Filter: "{Status}='open'", MaxRecords: 500}
	b := Key{BaseID: "appABCDEFGHIJKLMN", TableID: "tblABCDEFGHIJKLMN", Filter: "{Status}='open'", MaxRecords: 500}

	if a.Hash() != b.Hash() {
		t.Error("identical keys produced different hashes")
	}
}

func TestKey_DiffersByComponent(t *testing.T) {
	base := Key{BaseID: "appABCDEFGHIJKLMN", TableID: "tblABCDEFGHIJKLMN"}

	variants := []Key{
		{BaseID: "appZZZZZZZZZZZZZZ", TableID: base.TableID},
		{BaseID: base.BaseID, TableID: "tblZZZZZZZZZZZZZZ"},
		{BaseID: base.BaseID, TableID: base.TableID, Filter: "{x}=1"},
		{BaseID: base.BaseID, TableID: base.TableID, MaxRecords: 100},
	}
	seen := map[string]bool{base.Hash(): true}
	for i, v := range variants {
		h := v.Hash()
		if seen[h] {
			t.Errorf("variant %d collided with a previous key", i)
		}
		seen[h] = true
	}
}

func TestKey_UnboundedVsCapped(t *testing.T) {
	unbounded := Key{BaseID: "appABCDEFGHIJKLMN", TableID: "tblABCDEFGHIJKLMN"}
	capped := Key{BaseID: "appABCDEFGHIJKLMN", TableID: "tblABCDEFGHIJKLMN", MaxRecords: 1000}

	if unbounded.Hash() == capped.Hash() {
		t.Error("capped and unbounded requests must cache separately")
	}
}
