package router

import (
	"context"
	"testing"
	"time"

	"zcsmower/internal/coordinator"
	"zcsmower/internal/mower"
	"zcsmower/internal/zcs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	imeiA = "351111111111111"
	imeiB = "352222222222222"
	imeiC = "353333333333333"
)

func newTestRouter(t *testing.T) (*Router, *zcs.MockAPI, *zcs.MockAPI) {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	apiOne := zcs.NewMockAPI()
	apiTwo := zcs.NewMockAPI()

	one := coordinator.New("garden", []mower.Registration{
		{IMEI: imeiA, Name: "Front Lawn"},
		{IMEI: imeiB, Name: "Back Lawn"},
	}, apiOne, logger, nil)
	two := coordinator.New("meadow", []mower.Registration{
		{IMEI: imeiC, Name: "Meadow"},
	}, apiTwo, logger, nil)

	r := New(logger)
	r.Register(one)
	r.Register(two)
	return r, apiOne, apiTwo
}

func TestRouter_Resolve(t *testing.T) {
	r, _, _ := newTestRouter(t)

	t.Run("maps devices to their owning coordinator", func(t *testing.T) {
		targets := r.Resolve([]string{imeiA, imeiC})
		require.Len(t, targets, 2)
		assert.Equal(t, "garden", targets[0].Coordinator.Name())
		assert.Equal(t, "meadow", targets[1].Coordinator.Name())
	})

	t.Run("skips unknown devices", func(t *testing.T) {
		targets := r.Resolve([]string{imeiA, "359999999999999"})
		require.Len(t, targets, 1)
		assert.Equal(t, imeiA, targets[0].IMEI)
	})

	t.Run("deduplicates", func(t *testing.T) {
		targets := r.Resolve([]string{imeiA, imeiA, imeiA})
		assert.Len(t, targets, 1)
	})
}

func TestRouter_Dispatch(t *testing.T) {
	t.Run("reaches every resolved target", func(t *testing.T) {
		r, apiOne, apiTwo := newTestRouter(t)

		dispatched, err := r.Dispatch(context.Background(), ServiceBorderCut,
			[]string{imeiA, imeiC}, Params{})
		require.NoError(t, err)
		assert.Equal(t, 2, dispatched)

		// Commands run as background tasks.
		require.Eventually(t, func() bool {
			return len(apiOne.CallsFor("method.exec")) == 1 &&
				len(apiTwo.CallsFor("method.exec")) == 1
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("unknown service is an error before dispatch", func(t *testing.T) {
		r, apiOne, _ := newTestRouter(t)

		_, err := r.Dispatch(context.Background(), "explode", []string{imeiA}, Params{})
		require.Error(t, err)
		assert.Empty(t, apiOne.Calls())
	})

	t.Run("unknown targets dispatch nothing but are not errors", func(t *testing.T) {
		r, _, _ := newTestRouter(t)

		dispatched, err := r.Dispatch(context.Background(), ServiceBorderCut,
			[]string{"359999999999999"}, Params{})
		require.NoError(t, err)
		assert.Zero(t, dispatched)
	})
}

func TestRouter_DispatchParams(t *testing.T) {
	intp := func(v int) *int { return &v }

	t.Run("set_profile requires profile", func(t *testing.T) {
		r, _, _ := newTestRouter(t)
		_, err := r.Dispatch(context.Background(), ServiceSetProfile, []string{imeiA}, Params{})
		assert.Error(t, err)
	})

	t.Run("set_profile translates index", func(t *testing.T) {
		r, apiOne, _ := newTestRouter(t)
		_, err := r.Dispatch(context.Background(), ServiceSetProfile, []string{imeiA},
			Params{Profile: intp(2)})
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return len(apiOne.CallsFor("method.exec")) == 1
		}, 2*time.Second, 10*time.Millisecond)

		call := apiOne.CallsFor("method.exec")[0]
		params := call.Params["params"].(map[string]any)
		assert.Equal(t, 1, params["profile"])
	})

	t.Run("work_for requires duration", func(t *testing.T) {
		r, _, _ := newTestRouter(t)
		_, err := r.Dispatch(context.Background(), ServiceWorkFor, []string{imeiA}, Params{})
		assert.Error(t, err)
	})

	t.Run("work_until falls back to defaults", func(t *testing.T) {
		r, apiOne, _ := newTestRouter(t)
		_, err := r.Dispatch(context.Background(), ServiceWorkUntil, []string{imeiA}, Params{})
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return len(apiOne.CallsFor("method.exec")) == 1
		}, 2*time.Second, 10*time.Millisecond)

		call := apiOne.CallsFor("method.exec")[0]
		params := call.Params["params"].(map[string]any)
		assert.Equal(t, 0, params["area"])
		assert.Equal(t, 23, params["hh"])
		assert.Equal(t, 59, params["mm"])
	})

	t.Run("charge_until requires schedule fields", func(t *testing.T) {
		r, _, _ := newTestRouter(t)
		_, err := r.Dispatch(context.Background(), ServiceChargeUntil, []string{imeiA},
			Params{Hours: intp(22)})
		assert.Error(t, err)
	})

	t.Run("keep_out requires a location", func(t *testing.T) {
		r, _, _ := newTestRouter(t)
		_, err := r.Dispatch(context.Background(), ServiceKeepOut, []string{imeiA}, Params{})
		assert.Error(t, err)
	})

	t.Run("keep_out forwards the geofence", func(t *testing.T) {
		r, apiOne, _ := newTestRouter(t)
		_, err := r.Dispatch(context.Background(), ServiceKeepOut, []string{imeiA},
			Params{Location: &Location{Latitude: 51.5, Longitude: 7.4, Radius: 10}})
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return len(apiOne.CallsFor("method.exec")) == 1
		}, 2*time.Second, 10*time.Millisecond)

		call := apiOne.CallsFor("method.exec")[0]
		assert.Equal(t, "keep_out", call.Params["method"])
		params := call.Params["params"].(map[string]any)
		assert.Equal(t, 51.5, params["lat"])
		assert.Equal(t, 7.4, params["lng"])
		assert.Equal(t, 10, params["radius"])
	})
}

func TestRouter_Coordinators(t *testing.T) {
	r, _, _ := newTestRouter(t)

	coordinators := r.Coordinators()
	require.Len(t, coordinators, 2)
	assert.Contains(t, coordinators, "garden")
	assert.Contains(t, coordinators, "meadow")
}
