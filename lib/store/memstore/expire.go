package memstore

import "github.com/ValentinKolb/sKV/lib/store"

// Active expiration constants. Each pass inspects at most
// expireSampleSize records that carry an expiry, never checking more than
// expireCheckLimit records in total, and repeats while at least
// expireRepeatRatio of the sampled records turned out to be expired. The
// adaptive repeat keeps sweep cost proportional to how stale the keyspace
// actually is.
const (
	expireSampleSize  = 20
	expireCheckLimit  = 100
	expireRepeatRatio = 0.25
)

// ActiveExpire runs sampling sweeps until the expired ratio drops below
// the repeat threshold. It is driven by the server's maintenance tick.
func (s *Store) ActiveExpire() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if len(s.data) == 0 {
			return
		}

		nowMs := s.nowMs()
		sampled := 0
		expired := 0
		checked := 0

		for k, e := range s.data {
			if e.expiresAt != store.NoExpiry {
				sampled++
				if e.expired(nowMs) {
					delete(s.data, k)
					s.expiredActive++
					expired++
				}
				if sampled >= expireSampleSize {
					break
				}
			}

			checked++
			if checked >= expireCheckLimit {
				break
			}
		}

		if sampled == 0 || float64(expired)/float64(sampled) < expireRepeatRatio {
			return
		}
	}
}
