package host_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/fanlink/internal/device"
	"github.com/srg/fanlink/internal/host"
	"github.com/srg/fanlink/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type HostTestSuite struct {
	suite.Suite
	helper *testutils.TestHelper
}

func (s *HostTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
}

func (s *HostTestSuite) options() *host.Options {
	return &host.Options{
		ScanDuration:   40 * time.Millisecond,
		ConnectTimeout: time.Second,
		AwaitServices:  true,
	}
}

func (s *HostTestSuite) fanRadio() *testutils.FakeRadio {
	return testutils.NewRadioBuilder().
		WithPeripheral("AA:BB", "Fan").
		WithService("fff0").
		WithCharacteristic("fff1", "write").
		WithAdvertisement("AA:BB", "Fan").
		WithAdvertisement("CC:DD", "").
		Build()
}

func (s *HostTestSuite) TestScanForDevices() {
	// GOAL: Verify scan results are mapped to id/name pairs with the default name applied
	//
	// TEST SCENARIO: AA:BB reported twice as "Fan", CC:DD without name → two results

	h := host.New(s.fanRadio(), s.options(), s.helper.Logger)

	results, err := h.ScanForDevices(context.Background())

	s.Require().NoError(err)
	s.Assert().Equal([]host.DeviceResult{
		{ID: "AA:BB", Name: "Fan"},
		{ID: "CC:DD", Name: device.UnknownDeviceName},
	}, results)
}

func (s *HostTestSuite) TestEndToEnd() {
	// GOAL: Verify connect, send and disconnect through the host surface
	//
	// TEST SCENARIO: connect AA:BB (awaits services) → send "hello" → disconnect → second disconnect no-op

	radio := s.fanRadio()
	h := host.New(radio, s.options(), s.helper.Logger)
	ctx := s.helper.Context(2 * time.Second)

	ok, err := h.ConnectToDevice(ctx, "AA:BB")
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Assert().Equal(device.StateActive, h.Status().State, "awaited connect MUST leave the session ACTIVE")

	ok, err = h.SendData(ctx, "AA:BB", "hello")
	s.Require().NoError(err)
	s.Assert().True(ok)
	writes := radio.Writes()
	s.Require().Len(writes, 1)
	s.Assert().Equal([]byte("hello"), writes[0].Value)

	ok, err = h.Disconnect(ctx, "AA:BB")
	s.Require().NoError(err)
	s.Assert().True(ok)
	ok, err = h.Disconnect(ctx, "AA:BB")
	s.Assert().NoError(err, "second disconnect MUST be a no-op")
	s.Assert().True(ok)

	history := h.History()
	s.Require().NotEmpty(history)
	s.Assert().Equal(device.StateClosed, history[len(history)-1].To)
}

func (s *HostTestSuite) TestSendDataTargetsActiveSession() {
	radio := s.fanRadio()
	h := host.New(radio, s.options(), s.helper.Logger)
	ctx := s.helper.Context(2 * time.Second)

	_, err := h.ConnectToDevice(ctx, "AA:BB")
	s.Require().NoError(err)

	ok, err := h.SendData(ctx, "some-other-id", "1")
	s.Require().NoError(err)
	s.Assert().True(ok)
	s.Assert().Equal("AA:BB", radio.Writes()[0].PeripheralID, "the active session MUST decide the target")
}

func (s *HostTestSuite) TestErrors() {
	ctx := context.Background()

	s.Run("send before connect", func() {
		h := host.New(s.fanRadio(), s.options(), s.helper.Logger)
		ok, err := h.SendData(ctx, "AA:BB", "hello")
		s.Assert().False(ok)
		s.Assert().ErrorIs(err, device.ErrNotConnected)
	})

	s.Run("disconnect before connect", func() {
		h := host.New(s.fanRadio(), s.options(), s.helper.Logger)
		ok, err := h.Disconnect(ctx, "AA:BB")
		s.Assert().False(ok)
		s.Assert().ErrorIs(err, device.ErrNotConnected)
	})

	s.Run("radio off", func() {
		h := host.New(testutils.NewRadioBuilder().PoweredOff().Build(), s.options(), s.helper.Logger)
		s.Assert().False(h.Status().RadioUsable, "powered-off radio MUST be reported unusable")
		_, err := h.ScanForDevices(ctx)
		s.Assert().ErrorIs(err, device.ErrRadioUnavailable)
		_, err = h.ConnectToDevice(ctx, "AA:BB")
		s.Assert().ErrorIs(err, device.ErrRadioUnavailable)
	})

	s.Run("unknown device", func() {
		h := host.New(s.fanRadio(), s.options(), s.helper.Logger)
		_, err := h.ConnectToDevice(ctx, "11:22")
		s.Assert().ErrorIs(err, device.ErrPeripheralNotFound)
	})

	s.Run("refused", func() {
		radio := testutils.NewRadioBuilder().WithPeripheral("AA:BB", "Fan").WithBehavior(testutils.ConnectRefused).Build()
		h := host.New(radio, s.options(), s.helper.Logger)
		_, err := h.ConnectToDevice(ctx, "AA:BB")
		s.Assert().ErrorIs(err, device.ErrConnectionFailed)
	})

	s.Run("no writable characteristic", func() {
		radio := testutils.NewRadioBuilder().
			WithPeripheral("AA:BB", "Sensor").
			WithService("180a").
			WithCharacteristic("2a29", "read").
			Build()
		h := host.New(radio, s.options(), s.helper.Logger)
		_, err := h.ConnectToDevice(ctx, "AA:BB")
		s.Require().NoError(err, "connect MUST succeed even without a writable characteristic")
		_, err = h.SendData(ctx, "AA:BB", "hello")
		s.Assert().ErrorIs(err, device.ErrNoWritableCharacteristic)
		s.Assert().Empty(radio.Writes())
	})
}

func (s *HostTestSuite) TestPinnedWriteTarget() {
	// GOAL: Verify a configured service/characteristic pair is preferred over discovery order
	//
	// TEST SCENARIO: ffe0/ffe1 writable first, fff0/fff2 pinned → writes land on fff2;
	// pinned pair absent → first writable

	newRadio := func() *testutils.FakeRadio {
		return testutils.NewRadioBuilder().
			WithPeripheral("AA:BB", "Fan").
			WithService("ffe0").
			WithCharacteristic("ffe1", "write").
			WithService("fff0").
			WithCharacteristic("fff1", "read").
			WithCharacteristic("fff2", "write-without-response").
			Build()
	}
	ctx := context.Background()

	s.Run("pinned pair present", func() {
		radio := newRadio()
		opts := s.options()
		opts.ServiceUUID = "0000FFF0-0000-1000-8000-00805F9B34FB"
		opts.CharacteristicUUID = "0xfff2"
		h := host.New(radio, opts, s.helper.Logger)

		_, err := h.ConnectToDevice(ctx, "AA:BB")
		s.Require().NoError(err)
		_, err = h.SendData(ctx, "AA:BB", "on")
		s.Require().NoError(err)

		s.Require().Len(radio.Writes(), 1)
		s.Assert().Equal("fff2", radio.Writes()[0].Ref.UUID, "pinned characteristic MUST be the write target")
		s.Assert().Equal("fff0", h.Status().WriteTarget.ServiceUUID)
	})

	s.Run("pinned pair absent", func() {
		radio := newRadio()
		opts := s.options()
		opts.ServiceUUID = "abcd"
		opts.CharacteristicUUID = "abce"
		h := host.New(radio, opts, s.helper.Logger)

		_, err := h.ConnectToDevice(ctx, "AA:BB")
		s.Require().NoError(err)
		_, err = h.SendData(ctx, "AA:BB", "on")
		s.Require().NoError(err)

		s.Require().Len(radio.Writes(), 1)
		s.Assert().Equal("ffe1", radio.Writes()[0].Ref.UUID, "missing pinned pair MUST fall back to the first writable")
	})
}

func (s *HostTestSuite) TestConnectDeadline() {
	// GOAL: Verify the configured connect timeout bounds a peripheral that never answers
	//
	// TEST SCENARIO: hanging peripheral, 50ms connect timeout → Timeout, session CLOSED

	radio := testutils.NewRadioBuilder().WithPeripheral("AA:BB", "Fan").WithBehavior(testutils.ConnectHangs).Build()
	opts := s.options()
	opts.ConnectTimeout = 50 * time.Millisecond
	h := host.New(radio, opts, s.helper.Logger)

	ok, err := h.ConnectToDevice(context.Background(), "AA:BB")

	s.Assert().False(ok)
	s.Assert().ErrorIs(err, device.ErrTimeout)
	s.Assert().True(errors.Is(err, context.DeadlineExceeded))
	s.Assert().Equal(device.StateClosed, h.Status().State)
}

func (s *HostTestSuite) TestAwaitServicesFailureDisconnects() {
	// GOAL: Verify a link whose service discovery never completes is released when awaiting services
	//
	// TEST SCENARIO: service discovery hangs, await enabled, 50ms deadline → Timeout, session CLOSED

	radio := testutils.NewRadioBuilder().WithPeripheral("AA:BB", "Fan").WithBehavior(testutils.ServiceDiscoveryHangs).Build()
	opts := s.options()
	opts.ConnectTimeout = 50 * time.Millisecond
	h := host.New(radio, opts, s.helper.Logger)

	_, err := h.ConnectToDevice(context.Background(), "AA:BB")

	s.Assert().ErrorIs(err, device.ErrTimeout)
	s.Assert().Equal(device.StateClosed, h.Status().State)
	s.Assert().True(radio.LastGatt().Released())

	s.Run("without await the link-up is enough", func() {
		radio := testutils.NewRadioBuilder().WithPeripheral("AA:BB", "Fan").WithBehavior(testutils.ServiceDiscoveryHangs).Build()
		opts := s.options()
		opts.AwaitServices = false
		h := host.New(radio, opts, s.helper.Logger)

		ok, err := h.ConnectToDevice(context.Background(), "AA:BB")
		s.Require().NoError(err)
		s.Assert().True(ok)
		s.Assert().Equal(device.StateConnecting, h.Status().State)
	})
}

func (s *HostTestSuite) TestOperationsAreSerialized() {
	// GOAL: Verify a second operation waits for the running one and honours its own context
	//
	// TEST SCENARIO: scan of 300ms running; disconnect with a 20ms context → context error

	opts := s.options()
	opts.ScanDuration = 300 * time.Millisecond
	h := host.New(s.fanRadio(), opts, s.helper.Logger)

	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		_, _ = h.ScanForDevices(context.Background())
	}()
	time.Sleep(20 * time.Millisecond)
	s.Assert().True(h.Status().Discovering, "status MUST report the running scan")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.Disconnect(ctx, "")

	s.Assert().True(errors.Is(err, context.DeadlineExceeded), "queued operation MUST give up with its context")
	<-scanDone
}

func TestHostTestSuite(t *testing.T) {
	suite.Run(t, new(HostTestSuite))
}
