package bpfsverify

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestErrorStatus(t *testing.T) {
	h := chainhash.DoubleHashH([]byte("m"))
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{ErrCoinbaseStandalone, "coinbase"},
		{&MissingSourceError{Hash: h}, "missing_source"},
		{&MalformedTransactionError{Reason: "x"}, "malformed"},
		{&ConflictingSpendError{Conflicting: h}, "conflict"},
		{&ResolutionTimeoutError{Missing: []chainhash.Hash{h}}, "timeout"},
		{&ValueConservationError{In: big.NewInt(1), Out: big.NewInt(2)}, "value"},
		{fmt.Errorf("wrapped: %w", &ScriptFailureError{}), "script"},
		{context.Canceled, "error"},
		{errors.New("other"), "error"},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, errorStatus(test.err), "%v", test.err)
	}
}

func TestObserveVerify(t *testing.T) {
	before := testutil.ToFloat64(verifyTotal.WithLabelValues("script"))
	ObserveVerify(&ScriptFailureError{Input: 1}, time.Now())
	assert.Equal(t, before+1, testutil.ToFloat64(verifyTotal.WithLabelValues("script")))

	before = testutil.ToFloat64(resolveTotal.WithLabelValues("timeout"))
	ObserveResolve(&ResolutionTimeoutError{}, time.Now())
	assert.Equal(t, before+1, testutil.ToFloat64(resolveTotal.WithLabelValues("timeout")))
}

func TestObservePool(t *testing.T) {
	pool := newMemoryPool(nil)
	key := testKey(t, 0)
	pool.Add(fundingTx(t, key, 1))
	pool.Add(fundingTx(t, key, 2))
	pool.Queue(fundingTx(t, key, 3), chainhash.Hash{})

	observePool(pool)
	assert.Equal(t, float64(2), testutil.ToFloat64(poolPending))
	assert.Equal(t, float64(1), testutil.ToFloat64(poolQueued))
}
