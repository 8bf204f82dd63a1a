package core

import "testing"

func TestBaseGasCostKnownKinds(t *testing.T) {
	cases := []struct {
		kind TxKind
		want uint64
	}{
		{KindTransfer, 21_000},
		{KindCreateToken, 100_000},
		{KindTransferToken, 65_000},
		{KindDeployContract, 150_000},
		{KindCallContract, 50_000},
	}
	for _, c := range cases {
		if got := BaseGasCost(c.kind); got != c.want {
			t.Errorf("BaseGasCost(%s) = %d, want %d", c.kind, got, c.want)
		}
	}
}

func TestBaseGasCostFallsBackForUnknownKind(t *testing.T) {
	if got := BaseGasCost(TxKind("nonsense")); got != txGasTable[KindTransfer] {
		t.Fatalf("expected fallback to transfer cost, got %d", got)
	}
}
