package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/skillpulse/internal/adapters/http/api"
	service "github.com/okian/skillpulse/internal/app"
	"github.com/okian/skillpulse/internal/domain/catalog"
	"github.com/okian/skillpulse/internal/domain/consolidation"
	"github.com/okian/skillpulse/internal/domain/model"
	"github.com/okian/skillpulse/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var at = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

// mockDependencies records submissions and serves canned reads. The
// stateless calculations go through a real service.
type mockDependencies struct {
	submitted []model.Assessment
	seen      map[string]bool
	submitErr error

	statuses  []model.SkillStatus
	history   []model.ConsolidatedResult
	readErr   error
	lastLimit int

	calc *service.Service
}

func newMockDependencies() *mockDependencies {
	cat, err := catalog.New(
		catalog.Skill{ID: "teamwork", Name: "Teamwork", Course: "civics-7"},
		catalog.Skill{ID: "fractions", Name: "Fractions", Course: "math-6"},
		catalog.Skill{ID: "argument", Name: "Argumentation", Course: "civics-7"},
	)
	if err != nil {
		panic(err)
	}
	svc, err := service.New(service.WithCatalog(cat))
	if err != nil {
		panic(err)
	}
	return &mockDependencies{seen: map[string]bool{}, calc: svc}
}

func (m *mockDependencies) Submit(_ context.Context, a model.Assessment) (bool, error) {
	if m.submitErr != nil {
		return false, m.submitErr
	}
	if m.seen[a.ID] {
		return true, nil
	}
	m.seen[a.ID] = true
	m.submitted = append(m.submitted, a)
	return false, nil
}

func (m *mockDependencies) Status(_ context.Context, studentID, skillID string) (model.SkillStatus, error) {
	if m.readErr != nil {
		return model.SkillStatus{}, m.readErr
	}
	for _, s := range m.statuses {
		if s.StudentID == studentID && s.SkillID == skillID {
			return s, nil
		}
	}
	return model.SkillStatus{}, service.ErrNotFound
}

func (m *mockDependencies) Statuses(_ context.Context, studentID string) ([]model.SkillStatus, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	var out []model.SkillStatus
	for _, s := range m.statuses {
		if s.StudentID == studentID {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, service.ErrNotFound
	}
	return out, nil
}

func (m *mockDependencies) History(_ context.Context, _, _ string, limit int) ([]model.ConsolidatedResult, error) {
	m.lastLimit = limit
	if m.readErr != nil {
		return nil, m.readErr
	}
	return m.history, nil
}

func (m *mockDependencies) Consolidate(in consolidation.Input, target int) (service.Calculation, error) {
	return m.calc.Consolidate(in, target)
}

func (m *mockDependencies) Skills(course string) []catalog.Skill {
	return m.calc.Skills(course)
}

func (m *mockDependencies) Trend(series []model.Point, method model.Method, n int) model.Trend {
	return m.calc.Trend(series, method, n)
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps api.Dependencies, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}}, opts...).
		Register(context.Background(), mux)
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

func decode(w *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func assessmentBody(id string, value int, source string) string {
	return fmt.Sprintf(`{"id":%q,"student_id":"s-1","skill_id":"teamwork","source":%q,"value":%d,"at":%q}`,
		id, source, value, at.Format(time.RFC3339))
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(newMockDependencies())

		Convey("Then health serves the metrics exposition", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then stats are served as JSON", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			So(decode(w)["started"], ShouldEqual, true)
		})

		Convey("Then unknown paths are not found", func() {
			So(do(mux, http.MethodGet, "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then wrong methods are refused", func() {
			So(do(mux, http.MethodGet, "/assessments", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestAssessmentsHandler(t *testing.T) {
	Convey("Given the assessment intake", t, func() {
		deps := newMockDependencies()
		mux := newMux(deps)

		Convey("When a valid assessment is posted", func() {
			w := do(mux, http.MethodPost, "/assessments", assessmentBody("a-1", 2, "OBSERVATION"))

			Convey("Then it is accepted and handed to the service", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(decode(w)["status"], ShouldEqual, "accepted")
				So(len(deps.submitted), ShouldEqual, 1)
				So(deps.submitted[0].Source, ShouldEqual, model.SourceObservation)
				So(deps.submitted[0].At, ShouldEqual, at)
			})

			Convey("And posted again", func() {
				w := do(mux, http.MethodPost, "/assessments", assessmentBody("a-1", 2, "OBSERVATION"))

				Convey("Then it is acknowledged as a duplicate", func() {
					So(w.Code, ShouldEqual, http.StatusOK)
					So(decode(w)["duplicate"], ShouldEqual, true)
					So(len(deps.submitted), ShouldEqual, 1)
				})
			})
		})

		Convey("When the id is omitted", func() {
			w := do(mux, http.MethodPost, "/assessments", assessmentBody("", 3, "PEER"))

			Convey("Then one is generated and echoed", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				id, _ := decode(w)["id"].(string)
				So(id, ShouldNotBeEmpty)
				So(deps.submitted[0].ID, ShouldEqual, id)
			})
		})

		Convey("When the body is invalid", func() {
			cases := map[string]string{
				"malformed":      `{"student_id":`,
				"empty":          ``,
				"missing fields": `{"student_id":"s-1"}`,
				"unknown field":  `{"student_id":"s-1","skill_id":"k","source":"PEER","value":2,"at":"2026-05-04T09:30:00Z","score":2}`,
				"bad source":     assessmentBody("a-2", 2, "TEACHER"),
				"out of range":   assessmentBody("a-3", 4, "PEER"),
				"bad timestamp":  `{"student_id":"s-1","skill_id":"k","source":"PEER","value":2,"at":"yesterday"}`,
			}
			for name, body := range cases {
				w := do(mux, http.MethodPost, "/assessments", body)
				So(fmt.Sprintf("%s: %d", name, w.Code), ShouldEqual, fmt.Sprintf("%s: %d", name, http.StatusBadRequest))
				So(decode(w)["code"], ShouldEqual, "bad_request")
			}
			So(deps.submitted, ShouldBeEmpty)
		})

		Convey("When the service refuses the submission", func() {
			cases := []struct {
				err    error
				status int
				code   string
			}{
				{fmt.Errorf("lookup: %w", catalog.ErrUnknownSkill), http.StatusBadRequest, "unknown_skill"},
				{service.ErrBackpressure, http.StatusTooManyRequests, "backpressure"},
				{service.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
				{errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
			}
			for _, c := range cases {
				deps.submitErr = c.err
				w := do(mux, http.MethodPost, "/assessments", assessmentBody("a-9", 2, "PEER"))
				So(w.Code, ShouldEqual, c.status)
				So(decode(w)["code"], ShouldEqual, c.code)
			}
		})
	})
}

func TestStudentsHandler(t *testing.T) {
	Convey("Given stored statuses", t, func() {
		deps := newMockDependencies()
		deps.statuses = []model.SkillStatus{
			{StudentID: "s-1", SkillID: "argument", Score: 2.5, Level: model.LevelHigh, Trend: model.TrendImproving, LastAssessedAt: at},
			{StudentID: "s-1", SkillID: "teamwork", Score: 1.2, Level: model.LevelLow, Trend: model.TrendStable, LastAssessedAt: at},
		}
		deps.history = []model.ConsolidatedResult{
			{StudentID: "s-1", SkillID: "teamwork", At: at, ConsolidatedValue: 1.2, Level: model.LevelLow},
		}
		mux := newMux(deps, api.WithMaxHistoryLimit(50))

		Convey("When listing a student's skills", func() {
			w := do(mux, http.MethodGet, "/students/s-1/skills", "")
			var out []map[string]interface{}
			So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)

			Convey("Then every skill is returned with named enums", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(len(out), ShouldEqual, 2)
				So(out[0]["level"], ShouldEqual, "HIGH")
				So(out[0]["trend"], ShouldEqual, "IMPROVING")
			})
		})

		Convey("When reading one skill", func() {
			w := do(mux, http.MethodGet, "/students/s-1/skills/teamwork", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["score"], ShouldEqual, 1.2)
		})

		Convey("When the student is unknown", func() {
			So(do(mux, http.MethodGet, "/students/ghost/skills", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodGet, "/students/ghost/skills/teamwork", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When reading history", func() {
			w := do(mux, http.MethodGet, "/students/s-1/skills/teamwork/history?limit=5", "")

			Convey("Then the limit is forwarded", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastLimit, ShouldEqual, 5)
			})

			Convey("Then omitting the limit uses the cap", func() {
				do(mux, http.MethodGet, "/students/s-1/skills/teamwork/history", "")
				So(deps.lastLimit, ShouldEqual, 50)
			})
		})

		Convey("When the history limit is invalid", func() {
			So(do(mux, http.MethodGet, "/students/s-1/skills/teamwork/history?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/students/s-1/skills/teamwork/history?limit=x", "").Code, ShouldEqual, http.StatusBadRequest)

			w := do(mux, http.MethodGet, "/students/s-1/skills/teamwork/history?limit=51", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["code"], ShouldEqual, "limit_exceeded")
		})
	})
}

func TestCalculatorHandler(t *testing.T) {
	Convey("Given the stateless calculator", t, func() {
		mux := newMux(newMockDependencies())

		Convey("When consolidating with three peers", func() {
			w := do(mux, http.MethodPost, "/consolidate", `{"observation":2,"self":2,"peers":[1,1,3]}`)
			out := decode(w)

			Convey("Then the median peer is blended by reliability", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(out["consolidated_value"], ShouldAlmostEqual, (2*0.5+2*0.25+1*0.15)/0.9, 1e-9)
				So(out["level"], ShouldEqual, "MEDIUM")
				So(out["peer_consolidated_value"], ShouldEqual, 1.0)
				So(out["reliability"], ShouldAlmostEqual, 0.6, 1e-12)
			})
		})

		Convey("When consolidating without peers", func() {
			out := decode(do(mux, http.MethodPost, "/consolidate", `{"observation":3,"self":1}`))
			So(out["consolidated_value"], ShouldAlmostEqual, 1.75/0.75, 1e-9)
			So(out["peer_consolidated_value"], ShouldBeNil)
		})

		Convey("When a score is missing or out of range", func() {
			So(do(mux, http.MethodPost, "/consolidate", `{"observation":3}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/consolidate", `{"observation":3,"self":5}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/consolidate", `{"observation":3,"self":2,"target_peer_count":-1}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When classifying rising levels", func() {
			body := `{"points":[
				{"level":"LOW","at":"2026-01-01T00:00:00Z"},
				{"level":"MEDIUM","at":"2026-02-01T00:00:00Z"},
				{"score":2.9,"at":"2026-03-01T00:00:00Z"}]}`
			w := do(mux, http.MethodPost, "/trend", body)

			Convey("Then the trend is improving", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["trend"], ShouldEqual, "IMPROVING")
				So(decode(w)["points"], ShouldEqual, 3.0)
			})
		})

		Convey("When classifying rising scores without levels", func() {
			body := `{"method":"LINEAR_REGRESSION","points":[
				{"score":1.2,"at":"2026-01-01T00:00:00Z"},
				{"score":1.9,"at":"2026-02-01T00:00:00Z"},
				{"score":2.6,"at":"2026-03-01T00:00:00Z"}]}`
			w := do(mux, http.MethodPost, "/trend", body)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["trend"], ShouldEqual, "IMPROVING")
		})

		Convey("When the series is empty", func() {
			w := do(mux, http.MethodPost, "/trend", `{"points":[],"method":"SIMPLE_DIFFERENCE"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["trend"], ShouldEqual, "STABLE")
		})

		Convey("When the trend request is invalid", func() {
			cases := []string{
				`{"points":[],"method":"CRYSTAL_BALL"}`,
				`{"points":[{"at":"2026-01-01T00:00:00Z"}]}`,
				`{"points":[{"level":"HUGE","at":"2026-01-01T00:00:00Z"}]}`,
				`{"points":[{"level":"LOW"}]}`,
				`{"points":[{"level":"LOW","at":"2026-02-01T00:00:00Z"},{"level":"HIGH","at":"2026-01-01T00:00:00Z"}]}`,
			}
			for _, body := range cases {
				So(do(mux, http.MethodPost, "/trend", body).Code, ShouldEqual, http.StatusBadRequest)
			}
		})
	})
}

func TestSkillsHandler(t *testing.T) {
	Convey("Given a server over a three-skill catalog", t, func() {
		mux := newMux(newMockDependencies())

		Convey("When listing every skill", func() {
			w := do(mux, http.MethodGet, "/skills", "")
			skills := decode(w)["skills"].([]interface{})

			Convey("Then they come in catalog order", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(len(skills), ShouldEqual, 3)
				So(skills[1].(map[string]interface{})["id"], ShouldEqual, "fractions")
			})
		})

		Convey("When filtering by course", func() {
			skills := decode(do(mux, http.MethodGet, "/skills?course=civics-7", ""))["skills"].([]interface{})

			Convey("Then only that course is listed, by id", func() {
				So(len(skills), ShouldEqual, 2)
				So(skills[0].(map[string]interface{})["id"], ShouldEqual, "argument")
				So(skills[1].(map[string]interface{})["name"], ShouldEqual, "Teamwork")
			})
		})

		Convey("When the course is unknown", func() {
			w := do(mux, http.MethodGet, "/skills?course=music-1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["skills"], ShouldBeEmpty)
		})
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	Convey("Given a server limited to one request", t, func() {
		mux := newMux(newMockDependencies(), api.WithRateLimit(0.001, 1))

		Convey("When the bucket is exhausted", func() {
			first := do(mux, http.MethodPost, "/consolidate", `{"observation":2,"self":2}`)
			second := do(mux, http.MethodPost, "/consolidate", `{"observation":2,"self":2}`)

			Convey("Then further requests are refused", func() {
				So(first.Code, ShouldEqual, http.StatusOK)
				So(second.Code, ShouldEqual, http.StatusTooManyRequests)
				So(decode(second)["code"], ShouldEqual, "rate_limited")
				So(second.Header().Get("Retry-After"), ShouldEqual, "1")
			})

			Convey("Then health is not limited", func() {
				So(do(mux, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
			})
		})
	})

	Convey("Given a disabled limiter", t, func() {
		mux := newMux(newMockDependencies(), api.WithRateLimit(0, 1))
		for i := 0; i < 20; i++ {
			So(do(mux, http.MethodPost, "/consolidate", `{"observation":2,"self":2}`).Code, ShouldEqual, http.StatusOK)
		}
	})
}

func TestErrors(t *testing.T) {
	Convey("Given op-tagged errors", t, func() {
		cause := errors.New("boom")

		Convey("Then WrapKind matches both the kind and the cause", func() {
			err := api.WrapKind("api.op", api.ErrBadRequest, cause)
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: bad request: boom")
		})

		Convey("Then NewKind carries only the kind", func() {
			err := api.NewKind("api.op", api.ErrNotFound)
			So(errors.Is(err, api.ErrNotFound), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: not found")
		})

		Convey("Then Wrap keeps nil nil", func() {
			So(api.Wrap("api.op", nil), ShouldBeNil)
			So(errors.Is(api.Wrap("api.op", cause), cause), ShouldBeTrue)
		})
	})
}
