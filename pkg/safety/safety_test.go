package safety

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/trdp.go/pkg/sdt"
	"github.com/robotalks/trdp.go/pkg/trdp"
)

func TestFramedLen(t *testing.T) {
	f := DefaultFramer()
	for l := 0; l <= 300; l++ {
		n := FramedLen(l)
		require.Zero(t, n%4, "length %d", l)
		require.GreaterOrEqual(t, n, l+17, "length %d", l)
		require.Len(t, f.FrameMD(make([]byte, l)), n)
	}
	require.Equal(t, 20, Padding(0))
	require.Equal(t, 17, Padding(3))
}

func TestFrameValidates(t *testing.T) {
	f := DefaultFramer()
	v := NewMDValidator(DefaultFlow())
	frames := [][]byte{f.FrameMD([]byte("How are you?")), f.FrameMD(nil)}
	for _, frame := range append(frames, frames[0]) {
		r := v.Check(frame)
		require.True(t, r.Fresh())
		require.Equal(t, sdt.OK, r.Code)
		require.EqualValues(t, sdt.SSCNone, r.SSC)
	}
	require.EqualValues(t, 3, v.Counters().Received)

	payload := []byte("Hello, World")
	framed := f.FrameMD(payload)
	require.Equal(t, payload, framed[:len(payload)])
	require.Equal(t, make([]byte, 4), framed[len(payload):len(payload)+4])
}

func TestPeriodicFrames(t *testing.T) {
	f := DefaultFramer()
	v := NewPDValidator(DefaultFlow(), sdt.DefaultSinkParams())
	var ssc uint32
	for i := 0; i < 5; i++ {
		r := v.CheckLogged(1000, f.Frame([]byte("Just a Counter: 00000001"), &ssc))
		require.True(t, r.Fresh())
		require.EqualValues(t, i, r.SSC)
	}
	require.EqualValues(t, 5, ssc)

	ssc += 3
	r := v.Check(f.Frame(nil, &ssc))
	require.Equal(t, sdt.Invalid, r.Validity)
	require.Equal(t, sdt.ErrLoss, r.Code)
	require.Equal(t, sdt.Counters{Received: 6, Errored: 1, OutOfSequence: 1}, v.Counters())
}

func TestEncodeFailureStillFrames(t *testing.T) {
	f := &Framer{SID: 0, Version: sdt.DefaultVersion}
	var ssc uint32
	framed := f.Frame([]byte{1, 2, 3}, &ssc)
	require.Len(t, framed, 20)
	require.Zero(t, ssc)
}

func TestHandleCreatedOnce(t *testing.T) {
	v := NewPDValidator(DefaultFlow(), sdt.DefaultSinkParams())
	require.Equal(t, sdt.Counters{}, v.Counters())
	h := v.Handle()
	require.NotNil(t, h)
	require.Same(t, h, v.Handle())
	require.Equal(t, sdt.DefaultSinkParams(), h.Params())

	bad := NewMDValidator(Flow{})
	r := bad.Check(make([]byte, 32))
	require.Equal(t, sdt.Error, r.Validity)
	require.Equal(t, sdt.ErrHandle, r.Code)
	require.Nil(t, bad.Handle())
}

func TestMaxPayload(t *testing.T) {
	for _, limit := range []int{20, 21, 22, 23, 24, 1432, 65388} {
		max := MaxPayload(limit)
		require.LessOrEqualf(t, FramedLen(max), limit, "limit %d", limit)
		require.Greaterf(t, FramedLen(max+1), limit, "limit %d", limit)
	}
	require.Equal(t, 65371, MaxPayload(65388))
	require.Equal(t, -1, MaxPayload(19))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(ProcessData, sdt.DefaultSinkParams())
	a := r.Get(DefaultFlow())
	require.Same(t, a, r.Get(DefaultFlow()))
	b := r.Get(Flow{SID1: 1, Version: 2})
	require.NotSame(t, a, b)
	require.Equal(t, ProcessData, b.Kind)
	require.Equal(t, 2, r.Len())
}

func TestRegistrySources(t *testing.T) {
	src1, src2 := trdp.MustParseAddr("10.0.0.1"), trdp.MustParseAddr("10.0.0.2")
	other := Flow{SID1: 0x1000, Version: sdt.DefaultVersion}
	r := NewRegistry(ProcessData, sdt.DefaultSinkParams())
	r.Bind(src2, other)
	require.Equal(t, DefaultFlow(), r.FlowOf(src1))
	require.Equal(t, other, r.FlowOf(src2))

	framer1 := DefaultFramer()
	framer2 := &Framer{SID: other.SID1, Version: other.Version}
	var ssc1, ssc2 uint32
	for i := 0; i < 3; i++ {
		require.True(t, r.For(src1).Check(framer1.Frame([]byte("one"), &ssc1)).Fresh())
		require.True(t, r.For(src2).Check(framer2.Frame([]byte("two"), &ssc2)).Fresh())
	}
	require.False(t, r.For(src1).Check(framer2.Frame([]byte("two"), &ssc2)).Fresh())
	require.NotSame(t, r.For(src1), r.For(src2))
	require.Equal(t, []Flow{other, DefaultFlow()}, r.Flows())
	require.EqualValues(t, 3, r.For(src2).Counters().Received)
	require.EqualValues(t, 4, r.For(src1).Counters().Received)
}
