package savefi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckedMath(t *testing.T) {
	_, err := checkedAdd(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)
	_, err = checkedSub(1, 2)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)
	_, err = checkedMul(math.MaxUint64/2+1, 2)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)
	_, err = addSeconds(math.MaxInt64, 1)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)

	v, err := checkedMul(math.MaxUint64/2, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64-1), v)
}

func TestSplitTrade(t *testing.T) {
	for _, tc := range []struct {
		amount           uint64
		feeRate          uint8
		saveRate         uint8
		wantFee, wantSav uint64
	}{
		{1_000_000_000, 0, 10, 0, 100_000_000},
		{1_000_000_000, 5, 20, 50_000_000, 190_000_000},
		{99, 5, 20, 4, 19},
		{1, 5, 1, 0, 0},
		{1_000_000, 1, 1, 10_000, 9_900},
	} {
		fee, saved, err := SplitTrade(tc.amount, tc.feeRate, tc.saveRate)
		require.NoError(t, err)
		assert.Equal(t, tc.wantFee, fee, "fee for %+v", tc)
		assert.Equal(t, tc.wantSav, saved, "saved for %+v", tc)
	}

	_, _, err := SplitTrade(math.MaxUint64, 5, 10)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestCheckDelegation(t *testing.T) {
	p := DefaultParams()
	now := genesisTime + 10*SecondsPerHour
	v := &Vault{}

	assert.ErrorIs(t, CheckDelegation(v, p.MinDelegation-1, now, p), ErrDelegationTooSmall)
	assert.ErrorIs(t, CheckDelegation(v, p.MaxDelegation+1, now, p), ErrDelegationTooLarge)
	assert.NoError(t, CheckDelegation(v, p.MinDelegation, now, p))
	assert.NoError(t, CheckDelegation(v, p.MaxDelegation, now, p))

	require.NoError(t, RecordDelegation(v, p.MaxDelegation, now, p))
	assert.Equal(t, p.MaxDelegation, v.DailyDelegated)
	assert.Equal(t, now, v.LastDelegationTime)
	assert.Equal(t, genesisTime, v.DayWindowStart)

	// Size errors win over the cooldown.
	assert.ErrorIs(t, CheckDelegation(v, 0, now, p), ErrDelegationTooSmall)
	assert.ErrorIs(t, CheckDelegation(v, p.MinDelegation, now+59*60, p), ErrCooldownActive)
	assert.NoError(t, CheckDelegation(v, p.MinDelegation, now+SecondsPerHour, p))

	v.DailyDelegated = p.DailyLimit - p.MinDelegation
	assert.NoError(t, CheckDelegation(v, p.MinDelegation, now+SecondsPerHour, p))
	assert.ErrorIs(t, CheckDelegation(v, p.MinDelegation+1, now+SecondsPerHour, p), ErrDailyLimitExceeded)
}

func TestDayWindow_Calendar(t *testing.T) {
	p := DefaultParams()
	v := &Vault{}
	late := genesisTime + SecondsPerDay - 60
	require.NoError(t, RecordDelegation(v, p.MaxDelegation, late, p))
	assert.Equal(t, genesisTime, v.DayWindowStart)

	delegated, _ := p.dailyCounters(v, late+59)
	assert.Equal(t, p.MaxDelegation, delegated)

	// One minute later is a new UTC day.
	delegated, _ = p.dailyCounters(v, late+60)
	assert.Zero(t, delegated)
}

func TestDayWindow_Rolling(t *testing.T) {
	p := DefaultParams()
	p.DayWindow = DayWindowRolling
	v := &Vault{}
	late := genesisTime + SecondsPerDay - 60
	require.NoError(t, RecordDelegation(v, p.MaxDelegation, late, p))
	assert.Equal(t, late, v.DayWindowStart)

	delegated, _ := p.dailyCounters(v, late+SecondsPerDay-1)
	assert.Equal(t, p.MaxDelegation, delegated)
	delegated, _ = p.dailyCounters(v, late+SecondsPerDay)
	assert.Zero(t, delegated)

	recordTransaction(v, late+SecondsPerDay, p)
	assert.Equal(t, late+SecondsPerDay, v.DayWindowStart)
	assert.Zero(t, v.DailyDelegated)
	assert.Equal(t, uint32(1), v.DailyTransactionCount)
}

func TestCheckAllowance(t *testing.T) {
	v := &Vault{DelegatedAmount: 100, DelegationExpiry: 1000}
	assert.NoError(t, checkAllowance(v, 100, 1000))
	assert.ErrorIs(t, checkAllowance(v, 101, 1000), ErrDelegationExceeded)
	assert.ErrorIs(t, checkAllowance(v, 1, 1001), ErrDelegationExpired)
	assert.ErrorIs(t, checkAllowance(&Vault{}, 1, 1), ErrDelegationExpired)
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	for name, mutate := range map[string]func(*Params){
		"save rate":   func(p *Params) { p.MinSaveRate = 30 },
		"lock days":   func(p *Params) { p.MinLockDays = 0 },
		"fee rate":    func(p *Params) { p.MaxFeeRate = 101 },
		"delegation":  func(p *Params) { p.MinDelegation = 0 },
		"daily limit": func(p *Params) { p.DailyLimit = 1 },
		"window":      func(p *Params) { p.DayWindow = "weekly" },
		"gating":      func(p *Params) { p.TradeGating = "" },
	} {
		p := DefaultParams()
		mutate(&p)
		assert.Error(t, p.Validate(), name)
		_, err := New(p)
		assert.Error(t, err, name)
	}
}

func TestErrorCodes(t *testing.T) {
	codes := ErrorCodes()
	require.Len(t, codes, 24)
	assert.Equal(t, uint32(6000), ErrInvalidSaveRate.CustomCode())
	assert.Equal(t, uint32(6005), ErrVaultLocked.CustomCode())
	assert.Equal(t, uint32(6017), ErrArithmeticOverflow.CustomCode())
	assert.Equal(t, uint32(6023), ErrDelegationExceeded.CustomCode())
	assert.Equal(t, "VaultLocked", ErrVaultLocked.String())
	assert.Equal(t, "Vault is still locked", ErrVaultLocked.Error())

	for _, c := range codes {
		got, ok := ErrorCodeFromCustom(c.CustomCode())
		assert.True(t, ok)
		assert.Equal(t, c, got)
		assert.NotEmpty(t, c.String())
	}
	_, ok := ErrorCodeFromCustom(6024)
	assert.False(t, ok)
	_, ok = ErrorCodeFromCustom(1)
	assert.False(t, ok)

	err := wrap(ErrCooldownActive, "next at %d", 5)
	assert.ErrorIs(t, err, ErrCooldownActive)
	var code ErrorCode
	require.ErrorAs(t, err, &code)
	assert.Equal(t, ErrCooldownActive, code)
}

func TestInstructionEncoding(t *testing.T) {
	data, err := EncodeInstruction(InstructionProcessTrade, AmountArgs{Amount: 0x0102030405060708})
	require.NoError(t, err)
	require.Len(t, data, 16)
	assert.Equal(t, []byte{8, 7, 6, 5, 4, 3, 2, 1}, data[8:])

	name, err := InstructionName(data)
	require.NoError(t, err)
	assert.Equal(t, InstructionProcessTrade, name)

	var args AmountArgs
	require.NoError(t, decodeArgs(data, &args))
	assert.Equal(t, uint64(0x0102030405060708), args.Amount)

	rate := uint8(12)
	data, err = EncodeInstruction(InstructionUpdateVault, UpdateVaultArgs{LockDays: &rate})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 12}, data[8:])

	var update UpdateVaultArgs
	require.NoError(t, decodeArgs(data, &update))
	assert.Nil(t, update.SaveRate)
	require.NotNil(t, update.LockDays)
	assert.Equal(t, uint8(12), *update.LockDays)

	data, err = EncodeInstruction(InstructionWithdraw, nil)
	require.NoError(t, err)
	assert.Len(t, data, 8)

	_, err = EncodeInstruction("steal", nil)
	assert.ErrorIs(t, err, ErrInvalidInstructionData)

	res, err := EncodeReturnData(SaveResult{Fee: 1, Saved: 2, Balance: 3, LockUntil: 4})
	require.NoError(t, err)
	assert.Len(t, res, 32)
}
