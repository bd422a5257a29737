package api_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/axelofwar/be-community-gamification/internal/adapters/http/api"
	"github.com/axelofwar/be-community-gamification/internal/adapters/repository"
	"github.com/axelofwar/be-community-gamification/internal/domain/model"
	"github.com/axelofwar/be-community-gamification/internal/domain/types"
)

type mockDeps struct {
	seen       map[string]bool
	rejectAll  bool
	enqueued   []model.Observation
	entries    []types.Entry
	rank       types.Entry
	entity     types.Entity
	lookupErr  error
	topNErr    error
	lastLookup string
}

func newMockDeps() *mockDeps {
	return &mockDeps{seen: make(map[string]bool)}
}

func (m *mockDeps) SeenAndRecord(_ context.Context, id string) bool {
	if m.seen[id] {
		return true
	}
	m.seen[id] = true
	return false
}

func (m *mockDeps) Unrecord(_ context.Context, id string) { delete(m.seen, id) }

func (m *mockDeps) Size() int64 { return int64(len(m.seen)) }

func (m *mockDeps) Enqueue(_ context.Context, o model.Observation) bool {
	if m.rejectAll {
		return false
	}
	m.enqueued = append(m.enqueued, o)
	return true
}

func (m *mockDeps) TopN(_ context.Context, n int) ([]types.Entry, error) {
	if m.topNErr != nil {
		return nil, m.topNErr
	}
	return m.entries[:min(n, len(m.entries))], nil
}

func (m *mockDeps) Rank(_ context.Context, key string) (types.Entry, error) {
	m.lastLookup = key
	if m.lookupErr != nil {
		return types.Entry{}, m.lookupErr
	}
	return m.rank, nil
}

func (m *mockDeps) Entity(_ context.Context, key string) (types.Entity, error) {
	m.lastLookup = key
	if m.lookupErr != nil {
		return types.Entity{}, m.lookupErr
	}
	return m.entity, nil
}

type mockStats map[string]any

func (m mockStats) GetStats() map[string]any { return m }

func newMux(deps *mockDeps) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, mockStats{"processed": 7}, 10).Register(mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder, v any) error {
	return json.NewDecoder(w.Body).Decode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const validObservation = `{
	"id": "1640000000000000001",
	"key": "1234",
	"name": "Sam",
	"likes": 3,
	"retweets": 1,
	"replies": 0,
	"impressions": 40,
	"pfp_url": "https://pbs.twimg.com/profile_images/1/a_400x400.png",
	"description": "gm",
	"observed_at": "2023-01-02T15:04:05Z"
}`

func TestObservationsHandler(t *testing.T) {
	Convey("Given the API with a working queue", t, func() {
		deps := newMockDeps()
		mux := newMux(deps)

		Convey("When a valid observation is posted", func() {
			w := do(mux, http.MethodPost, "/observations", validObservation)

			Convey("Then it is accepted and queued as sent", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(deps.enqueued, ShouldHaveLength, 1)

				o := deps.enqueued[0]
				So(o.ID, ShouldEqual, "1640000000000000001")
				So(o.Identity, ShouldResemble, model.Identity{Key: "1234", DisplayName: "Sam"})
				So(o.Metrics, ShouldResemble, model.Metrics{Likes: 3, Retweets: 1, Impressions: 40})
				So(*o.BioDescription, ShouldEqual, "gm")
				So(o.BioLink, ShouldBeNil)
				So(o.ObservedAt.Equal(time.Date(2023, 1, 2, 15, 4, 5, 0, time.UTC)), ShouldBeTrue)
			})
		})

		Convey("When the same id is posted twice", func() {
			do(mux, http.MethodPost, "/observations", validObservation)
			w := do(mux, http.MethodPost, "/observations", validObservation)

			Convey("Then the second is acknowledged as a duplicate and not queued", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var ack map[string]string
				So(decode(w, &ack), ShouldBeNil)
				So(ack["status"], ShouldEqual, "duplicate")
				So(deps.enqueued, ShouldHaveLength, 1)
			})
		})

		Convey("When no id is supplied", func() {
			w := do(mux, http.MethodPost, "/observations", `{"key":"1","pfp_url":"None"}`)

			Convey("Then one is generated and the unknown picture is accepted", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				var ack map[string]string
				So(decode(w, &ack), ShouldBeNil)
				So(ack["id"], ShouldHaveLength, 36)
				So(deps.enqueued[0].ID, ShouldEqual, ack["id"])
				So(deps.enqueued[0].ProfileImageURL, ShouldEqual, model.Unknown)
				So(deps.enqueued[0].ObservedAt.IsZero(), ShouldBeFalse)
			})
		})

		Convey("When the body is not JSON", func() {
			w := do(mux, http.MethodPost, "/observations", `{not json`)

			Convey("Then it is rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(deps.enqueued, ShouldBeEmpty)
			})
		})

		Convey("When fields fail validation", func() {
			bodies := []string{
				`{"key":"  ","pfp_url":"None"}`,
				`{"key":"1"}`,
				`{"key":"1","pfp_url":"/a.png"}`,
				`{"key":"1","pfp_url":"None","likes":-1}`,
				`{"key":"1","pfp_url":"None","observed_at":"yesterday"}`,
			}

			Convey("Then each is a 400 with a message", func() {
				for _, body := range bodies {
					w := do(mux, http.MethodPost, "/observations", body)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
					var e errorBody
					So(decode(w, &e), ShouldBeNil)
					So(e.Code, ShouldEqual, "bad_request")
					So(e.Message, ShouldNotBeEmpty)
				}
				So(deps.enqueued, ShouldBeEmpty)
				So(deps.Size(), ShouldEqual, int64(0))
			})
		})

		Convey("When the method is not POST", func() {
			w := do(mux, http.MethodGet, "/observations", "")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})

	Convey("Given the API with a full queue", t, func() {
		deps := newMockDeps()
		deps.rejectAll = true
		mux := newMux(deps)

		Convey("When an observation is posted", func() {
			w := do(mux, http.MethodPost, "/observations", validObservation)

			Convey("Then it reports backpressure and forgets the id", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				var e errorBody
				So(decode(w, &e), ShouldBeNil)
				So(e.Code, ShouldEqual, "backpressure")
				So(deps.seen, ShouldBeEmpty)
			})
		})
	})
}

func TestLeaderboardHandler(t *testing.T) {
	Convey("Given a leaderboard of three rows", t, func() {
		deps := newMockDeps()
		for i := range 3 {
			deps.entries = append(deps.entries, types.Entry{Rank: i + 1, Key: fmt.Sprint(i), Impressions: int64(100 - i)})
		}
		mux := newMux(deps)

		Convey("When asking for the top two", func() {
			w := do(mux, http.MethodGet, "/leaderboard?limit=2", "")

			Convey("Then two rows come back in order", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var got []types.Entry
				So(decode(w, &got), ShouldBeNil)
				So(got, ShouldResemble, deps.entries[:2])
			})
		})

		Convey("When the limit is missing, zero or above the cap", func() {
			Convey("Then each is rejected", func() {
				So(do(mux, http.MethodGet, "/leaderboard", "").Code, ShouldEqual, http.StatusBadRequest)
				So(do(mux, http.MethodGet, "/leaderboard?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)

				w := do(mux, http.MethodGet, "/leaderboard?limit=11", "")
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				var e errorBody
				So(decode(w, &e), ShouldBeNil)
				So(e.Code, ShouldEqual, "limit_exceeded")
			})
		})

		Convey("When the store fails", func() {
			deps.topNErr = errors.New("boom")
			w := do(mux, http.MethodGet, "/leaderboard?limit=1", "")

			Convey("Then it is an internal error", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})

		Convey("When the board is empty", func() {
			deps.entries = nil
			w := do(mux, http.MethodGet, "/leaderboard?limit=5", "")

			Convey("Then an empty array is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
			})
		})
	})
}

func TestLookupHandlers(t *testing.T) {
	Convey("Given a known entity", t, func() {
		deps := newMockDeps()
		deps.rank = types.Entry{Rank: 2, Key: "1234", Impressions: 40}
		deps.entity = types.Entity{Key: "1234", DisplayName: "Sam", Metrics: map[string]int64{"impressions": 40}}
		mux := newMux(deps)

		Convey("When asking for its rank", func() {
			w := do(mux, http.MethodGet, "/rank/1234", "")

			Convey("Then the ranked row is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastLookup, ShouldEqual, "1234")
				var got types.Entry
				So(decode(w, &got), ShouldBeNil)
				So(got, ShouldResemble, deps.rank)
			})
		})

		Convey("When asking for its details", func() {
			w := do(mux, http.MethodGet, "/entities/1234", "")

			Convey("Then the metrics map is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var got types.Entity
				So(decode(w, &got), ShouldBeNil)
				So(got, ShouldResemble, deps.entity)
			})
		})

		Convey("When the key is missing or nested", func() {
			Convey("Then both routes reject it", func() {
				So(do(mux, http.MethodGet, "/rank/", "").Code, ShouldEqual, http.StatusBadRequest)
				So(do(mux, http.MethodGet, "/entities/a/b", "").Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the store does not know the key", func() {
			deps.lookupErr = fmt.Errorf("lookup: %w", repository.ErrNotFound)

			Convey("Then both routes answer 404", func() {
				So(do(mux, http.MethodGet, "/rank/nobody", "").Code, ShouldEqual, http.StatusNotFound)
				w := do(mux, http.MethodGet, "/entities/nobody", "")
				So(w.Code, ShouldEqual, http.StatusNotFound)
				var e errorBody
				So(decode(w, &e), ShouldBeNil)
				So(e.Code, ShouldEqual, "not_found")
			})
		})

		Convey("When the store fails", func() {
			deps.lookupErr = repository.ErrStoreUnavailable

			Convey("Then both routes answer 500", func() {
				So(do(mux, http.MethodGet, "/rank/1234", "").Code, ShouldEqual, http.StatusInternalServerError)
				So(do(mux, http.MethodGet, "/entities/1234", "").Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestStatsAndHealth(t *testing.T) {
	Convey("Given the API", t, func() {
		mux := newMux(newMockDeps())

		Convey("When reading stats", func() {
			w := do(mux, http.MethodGet, "/stats", "")

			Convey("Then the provider's map is served as JSON", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
				var got map[string]any
				So(decode(w, &got), ShouldBeNil)
				So(got["processed"], ShouldEqual, float64(7))
			})
		})

		Convey("When probing health", func() {
			w := do(mux, http.MethodGet, "/healthz", "")

			Convey("Then the metrics registry is exposed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given a wrapped API error", t, func() {
		cause := errors.New("disk")
		err := api.WrapKind("api.op", api.ErrBadRequest, cause)

		Convey("Then both kind and cause are matchable", func() {
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: bad request: disk")
		})

		Convey("Then Wrap marks internal errors and keeps nil", func() {
			So(errors.Is(api.Wrap("op", cause), api.ErrInternal), ShouldBeTrue)
			So(api.Wrap("op", nil), ShouldBeNil)
			So(api.NewKind("op", api.ErrNotFound).Error(), ShouldEqual, "op: not found")
		})
	})
}

func TestMetricsMiddleware(t *testing.T) {
	Convey("Given a handler that panics", t, func() {
		h := api.MetricsMiddleware(func(http.ResponseWriter, *http.Request) { panic("boom") }, "test")

		Convey("When it is called", func() {
			w := httptest.NewRecorder()
			So(func() { h(w, httptest.NewRequest(http.MethodGet, "/x", nil)) }, ShouldNotPanic)

			Convey("Then the client sees a 500 error body", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				var e errorBody
				So(decode(w, &e), ShouldBeNil)
				So(e.Code, ShouldEqual, "internal_error")
			})
		})
	})
}
