package savefi

// windowStart returns the start of the daily window containing now and
// whether it is the window the vault's counters belong to.
func (p Params) windowStart(v *Vault, now int64) (int64, bool) {
	switch p.DayWindow {
	case DayWindowRolling:
		if v.DayWindowStart != 0 && now-v.DayWindowStart < SecondsPerDay {
			return v.DayWindowStart, true
		}
		return now, false
	default:
		start := now - now%SecondsPerDay
		if now < 0 && now%SecondsPerDay != 0 {
			start -= SecondsPerDay
		}
		return start, v.DayWindowStart == start
	}
}

// dailyCounters returns the vault's delegated volume and transaction count
// for the window containing now.
func (p Params) dailyCounters(v *Vault, now int64) (delegated uint64, count uint32) {
	if _, same := p.windowStart(v, now); same {
		return v.DailyDelegated, v.DailyTransactionCount
	}
	return 0, 0
}

// rollWindow resets the daily counters when now has left the vault's window.
func (p Params) rollWindow(v *Vault, now int64) {
	start, same := p.windowStart(v, now)
	if same {
		return
	}
	v.DayWindowStart = start
	v.DailyDelegated = 0
	v.DailyTransactionCount = 0
}

// CheckDelegation validates a delegation grant of amount at now against the
// per-grant bounds, the daily limit and the cooldown. It does not modify v.
func CheckDelegation(v *Vault, amount uint64, now int64, p Params) error {
	if amount < p.MinDelegation {
		return wrap(ErrDelegationTooSmall, "%d < %d", amount, p.MinDelegation)
	}
	if amount > p.MaxDelegation {
		return wrap(ErrDelegationTooLarge, "%d > %d", amount, p.MaxDelegation)
	}

	delegated, _ := p.dailyCounters(v, now)
	total, err := checkedAdd(delegated, amount)
	if err != nil {
		return err
	}
	if total > p.DailyLimit {
		return wrap(ErrDailyLimitExceeded, "%d delegated today, limit %d", total, p.DailyLimit)
	}

	if v.LastDelegationTime > 0 && now-v.LastDelegationTime < p.delegationCooldown() {
		return wrap(ErrCooldownActive, "next grant at %d", v.LastDelegationTime+p.delegationCooldown())
	}
	return nil
}

// RecordDelegation applies a grant that passed CheckDelegation.
func RecordDelegation(v *Vault, amount uint64, now int64, p Params) error {
	p.rollWindow(v, now)
	total, err := checkedAdd(v.DailyDelegated, amount)
	if err != nil {
		return err
	}
	v.DailyDelegated = total
	v.LastDelegationTime = now
	return nil
}

// checkTransactionCount fails once the vault has used its daily trades.
func checkTransactionCount(v *Vault, now int64, p Params) error {
	_, count := p.dailyCounters(v, now)
	if count >= p.MaxTransactionsPerDay {
		return wrap(ErrDailyTransactionLimitExceeded, "%d trades today", count)
	}
	return nil
}

func recordTransaction(v *Vault, now int64, p Params) {
	p.rollWindow(v, now)
	v.DailyTransactionCount++
}

// checkAllowance validates a trade against the allowance granted by
// delegate_funds.
func checkAllowance(v *Vault, amount uint64, now int64) error {
	if v.DelegationExpiry == 0 || now > v.DelegationExpiry {
		return wrap(ErrDelegationExpired, "expired at %d", v.DelegationExpiry)
	}
	if amount > v.DelegatedAmount {
		return wrap(ErrDelegationExceeded, "%d requested, %d remaining", amount, v.DelegatedAmount)
	}
	return nil
}
