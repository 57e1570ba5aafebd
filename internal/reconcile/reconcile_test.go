package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chain-watchdog/internal/probe"
)

func ptr(v int64) *int64 { return &v }

func TestReconcile(t *testing.T) {
	cases := []struct {
		name   string
		chain  *int64
		oracle *int64
		skew   *int64
		status Status
		reason string
		delta  *int64
	}{
		{name: "aligned", chain: ptr(1000), oracle: ptr(1000), skew: ptr(5), status: StatusOK, delta: ptr(0)},
		{name: "at bound", chain: ptr(1000), oracle: ptr(995), skew: ptr(5), status: StatusOK, delta: ptr(5)},
		{name: "skewed", chain: ptr(1000), oracle: ptr(1010), skew: ptr(5), status: StatusDegraded, reason: ReasonOracleTimeSkew, delta: ptr(10)},
		{name: "oracle behind", chain: ptr(1010), oracle: ptr(1000), skew: ptr(5), status: StatusDegraded, reason: ReasonOracleTimeSkew, delta: ptr(10)},
		{name: "no skew configured", chain: ptr(1000), oracle: ptr(1000), status: StatusDegraded, reason: ReasonMissingTimestampEpoch},
		{name: "no chain epoch", oracle: ptr(1000), skew: ptr(5), status: StatusDegraded, reason: ReasonMissingTimestampEpoch},
		{name: "no oracle epoch", chain: ptr(1000), skew: ptr(5), status: StatusDegraded, reason: ReasonMissingTimestampEpoch},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Reconcile(
				probe.OrientationSnapshot{TimestampEpoch: tc.chain},
				probe.OracleSnapshot{TimestampEpoch: tc.oracle},
				Config{MaxTimeSkewSec: tc.skew},
			)
			assert.Equal(t, tc.status, res.Status)
			assert.Equal(t, tc.reason, res.Reason)
			if tc.delta == nil {
				assert.Nil(t, res.DeltaSec)
				return
			}
			require.NotNil(t, res.DeltaSec)
			assert.Equal(t, *tc.delta, *res.DeltaSec)
		})
	}
}

func TestReconcileKeepsInputEpochs(t *testing.T) {
	res := Epochs(ptr(1), ptr(2), Config{MaxTimeSkewSec: ptr(10)})
	require.NotNil(t, res.ChainEpoch)
	require.NotNil(t, res.OracleEpoch)
	assert.Equal(t, int64(1), *res.ChainEpoch)
	assert.Equal(t, int64(2), *res.OracleEpoch)
}
