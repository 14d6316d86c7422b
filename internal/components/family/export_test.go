package family

import "time"

// SetIssuerClockForTest replaces the issuer's clock.
func SetIssuerClockForTest(i *Issuer, now func() time.Time) {
	i.now = now
}

// SetReconcilerClockForTest replaces the reconciler's clock.
func SetReconcilerClockForTest(r *Reconciler, now func() time.Time) {
	r.now = now
}
