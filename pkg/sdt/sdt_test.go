package sdt

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func frame(t *testing.T, size int, sid uint32, version uint16, ssc uint32) []byte {
	buf := make([]byte, size)
	for i := 0; i < size-TrailerLen; i++ {
		buf[i] = byte(i)
	}
	require.Equal(t, OK, Encode(buf, sid, version, &ssc))
	return buf
}

func TestEncode(t *testing.T) {
	testCases := []struct {
		size   int
		result Result
	}{
		{0, ErrSize},
		{15, ErrSize},
		{18, ErrSize},
		{16, OK},
		{36, OK},
	}
	for _, tc := range testCases {
		ssc := uint32(7)
		require.Equalf(t, tc.result, Encode(make([]byte, tc.size), DefaultSID, DefaultVersion, &ssc), "size %d", tc.size)
		if tc.result == OK {
			require.EqualValues(t, 8, ssc)
		} else {
			require.EqualValues(t, 7, ssc)
		}
	}

	ssc := uint32(SSCNone)
	buf := make([]byte, 32)
	require.Equal(t, OK, Encode(buf, DefaultSID, DefaultVersion, &ssc))
	require.EqualValues(t, SSCNone, ssc)
	tr, res := ParseTrailer(buf)
	require.Equal(t, OK, res)
	require.EqualValues(t, DefaultVersion, tr.Version)
	require.EqualValues(t, SSCNone, tr.SSC)
	require.Equal(t, SafetyCode(buf, DefaultSID), tr.Code)

	require.Equal(t, ErrParam, Encode(buf, DefaultSID, DefaultVersion, nil))
	require.Equal(t, ErrParam, Encode(buf, 0, DefaultVersion, &ssc))
}

func TestMDOrderIndependent(t *testing.T) {
	v, res := NewValidator(ProfileIPT, DefaultSID, 0, 0, DefaultVersion)
	require.Equal(t, OK, res)
	first := frame(t, 32, DefaultSID, DefaultVersion, SSCNone)
	second := frame(t, 48, DefaultSID, DefaultVersion, SSCNone)
	for _, f := range [][]byte{second, first, first, second} {
		require.Equal(t, Fresh, v.ValidateMD(f))
		require.Equal(t, OK, v.Errno())
	}
	require.Equal(t, Counters{Received: 4}, v.Counters())
}

func TestMDFailures(t *testing.T) {
	other := uint32(0x0badcafe)
	corrupted := frame(t, 32, DefaultSID, DefaultVersion, SSCNone)
	corrupted[3] ^= 0xff
	testCases := []struct {
		name     string
		frame    []byte
		sid2     uint32
		sid2Red  uint8
		validity Validity
		errno    Result
		counters Counters
	}{
		{"short", make([]byte, 12), 0, 0, Invalid, ErrSize, Counters{Received: 1, Errored: 1}},
		{"corrupted", corrupted, 0, 0, Invalid, ErrCRC, Counters{Received: 1, Errored: 1}},
		{"unknown sid", frame(t, 32, other, DefaultVersion, SSCNone), 0, 0, Invalid, ErrCRC, Counters{Received: 1, Errored: 1}},
		{"second sid", frame(t, 32, other, DefaultVersion, SSCNone), other, 0, Invalid, ErrSID, Counters{Received: 1, Errored: 1, SIDMismatch: 1}},
		{"redundant sid", frame(t, 32, other, DefaultVersion, SSCNone), other, 1, Fresh, OK, Counters{Received: 1}},
		{"version", frame(t, 32, DefaultSID, 3, SSCNone), 0, 0, Invalid, ErrVersion, Counters{Received: 1, Errored: 1, VersionMismatch: 1}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, res := NewValidator(ProfileIPT, DefaultSID, tc.sid2, tc.sid2Red, DefaultVersion)
			require.Equal(t, OK, res)
			require.Equal(t, tc.validity, v.ValidateMD(tc.frame))
			require.Equal(t, tc.errno, v.Errno())
			require.Equal(t, tc.counters, v.Counters())
		})
	}
}

func TestNewValidatorParams(t *testing.T) {
	_, res := NewValidator(ProfileIPT, 0, 0, 0, DefaultVersion)
	require.Equal(t, ErrParam, res)
	_, res = NewValidator(ProfileIPT, DefaultSID, 0, 1, DefaultVersion)
	require.Equal(t, ErrParam, res)
	_, res = NewValidator(Profile(9), DefaultSID, 0, 0, DefaultVersion)
	require.Equal(t, ErrParam, res)

	v, res := NewValidator(ProfileIPT, DefaultSID, 0, 0, DefaultVersion)
	require.Equal(t, OK, res)
	require.Equal(t, ErrParam, v.SetSinkParams(SinkParams{}))
	require.Equal(t, OK, v.SetSinkParams(DefaultSinkParams()))
	require.Equal(t, ErrInit, v.SetSinkParams(DefaultSinkParams()))

	v, _ = NewValidator(ProfileIPT, DefaultSID, 0, 0, DefaultVersion)
	v.ValidatePD(frame(t, 32, DefaultSID, DefaultVersion, 0))
	require.Equal(t, ErrInit, v.SetSinkParams(DefaultSinkParams()))
}

func TestPDSequence(t *testing.T) {
	v, _ := NewValidator(ProfileIPT, DefaultSID, 0, 0, DefaultVersion)
	require.Equal(t, OK, v.SetSinkParams(DefaultSinkParams()))
	require.EqualValues(t, 2, v.Params().MaxStep())

	steps := []struct {
		ssc      uint32
		validity Validity
		errno    Result
	}{
		{0, Fresh, OK},
		{1, Fresh, OK},
		{1, Invalid, ErrDup},
		{2, Fresh, OK},
		{5, Invalid, ErrLoss},
		{6, Invalid, ErrLoss},
		{7, Invalid, ErrLoss},
		{8, Fresh, OK},
		{10, Fresh, OK},
		{9, Invalid, ErrLoss},
	}
	for i, s := range steps {
		require.Equalf(t, s.validity, v.ValidatePD(frame(t, 32, DefaultSID, DefaultVersion, s.ssc)), "step %d", i)
		require.Equalf(t, s.errno, v.Errno(), "step %d", i)
		require.Equal(t, s.ssc, v.SSC())
	}
	require.Equal(t, Counters{
		Received:      10,
		Errored:       5,
		OutOfSequence: 2,
		Duplicate:     1,
		LifeMissGuard: 2,
	}, v.Counters())
}

func TestPDThresholds(t *testing.T) {
	t.Run("safe retries", func(t *testing.T) {
		v, _ := NewValidator(ProfileIPT, DefaultSID, 0, 0, DefaultVersion)
		p := DefaultSinkParams()
		p.SafeRetries = 2
		require.Equal(t, OK, v.SetSinkParams(p))
		f := frame(t, 32, DefaultSID, DefaultVersion, 0)
		require.Equal(t, Fresh, v.ValidatePD(f))
		require.Equal(t, Invalid, v.ValidatePD(f))
		require.Equal(t, Invalid, v.ValidatePD(f))
		require.Equal(t, Error, v.ValidatePD(f))
		require.Equal(t, ErrDup, v.Errno())
		require.Equal(t, Fresh, v.ValidatePD(frame(t, 32, DefaultSID, DefaultVersion, 1)))
	})

	t.Run("latency monitor", func(t *testing.T) {
		v, _ := NewValidator(ProfileIPT, DefaultSID, 0, 0, DefaultVersion)
		p := DefaultSinkParams()
		p.LMIMax = 1
		require.Equal(t, OK, v.SetSinkParams(p))
		f := frame(t, 32, DefaultSID, DefaultVersion, 0)
		require.Equal(t, Fresh, v.ValidatePD(f))
		require.Equal(t, Invalid, v.ValidatePD(f))
		require.Equal(t, Error, v.ValidatePD(f))
		require.Equal(t, ErrLTM, v.Errno())
	})

	t.Run("channel failure", func(t *testing.T) {
		v, _ := NewValidator(ProfileIPT, DefaultSID, 0, 0, DefaultVersion)
		p := DefaultSinkParams()
		p.CMThreshold = 3
		require.Equal(t, OK, v.SetSinkParams(p))
		bad := frame(t, 32, DefaultSID, DefaultVersion, 0)
		bad[0] ^= 1
		require.Equal(t, Invalid, v.ValidatePD(bad))
		require.Equal(t, Invalid, v.ValidatePD(bad))
		require.Equal(t, Error, v.ValidatePD(bad))
		require.Equal(t, ErrCMThr, v.Errno())
		require.Equal(t, Error, v.ValidatePD(frame(t, 32, DefaultSID, DefaultVersion, 1)))
		require.Equal(t, ErrCMThr, v.Errno())
		require.EqualValues(t, 4, v.Counters().Received)
	})
}

func TestCountersMonotonic(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	v, _ := NewValidator(ProfileIPT, DefaultSID, 0x55, 0, DefaultVersion)
	var prev Counters
	ssc := uint32(0)
	for i := 0; i < 500; i++ {
		var f []byte
		switch rnd.Intn(6) {
		case 0:
			f = frame(t, 32, DefaultSID, DefaultVersion, ssc)
		case 1:
			ssc += uint32(rnd.Intn(5))
			f = frame(t, 32, DefaultSID, DefaultVersion, ssc)
		case 2:
			f = frame(t, 32, 0x55, DefaultVersion, ssc)
		case 3:
			f = frame(t, 32, DefaultSID, 7, ssc)
		case 4:
			f = make([]byte, rnd.Intn(40))
		default:
			ssc -= uint32(rnd.Intn(3))
			f = frame(t, 32, DefaultSID, DefaultVersion, ssc)
		}
		if rnd.Intn(2) == 0 {
			v.ValidatePD(f)
		} else {
			v.ValidateMD(f)
		}
		c := v.Counters()
		require.GreaterOrEqual(t, c.Received, prev.Received)
		require.GreaterOrEqual(t, c.Errored, prev.Errored)
		require.GreaterOrEqual(t, c.SIDMismatch, prev.SIDMismatch)
		require.GreaterOrEqual(t, c.OutOfSequence, prev.OutOfSequence)
		require.GreaterOrEqual(t, c.Duplicate, prev.Duplicate)
		require.GreaterOrEqual(t, c.VersionMismatch, prev.VersionMismatch)
		require.GreaterOrEqual(t, c.LifeMissGuard, prev.LifeMissGuard)
		require.Equal(t, prev.Received+1, c.Received)
		prev = c
	}
}

func TestNames(t *testing.T) {
	require.Equal(t, "SDT_ERR_CMTHR", ErrCMThr.String())
	require.Equal(t, "UNKNOWN", Result(99).String())
	require.Equal(t, "SDT_INVALID", Invalid.String())
	require.Equal(t, "rx(1) err(2) sid(3) oos(4) dpl(5) udv(6) lmg(7)",
		Counters{1, 2, 3, 4, 5, 6, 7}.String())
}
