package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/skillpulse/internal/domain/model"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func assessment(id, student, skill string, src model.Source, v int, hours int) model.Assessment {
	return model.Assessment{
		ID:        id,
		StudentID: student,
		SkillID:   skill,
		Source:    src,
		Value:     v,
		At:        t0.Add(time.Duration(hours) * time.Hour),
	}
}

func result(student, skill string, hours int, value float64) model.ConsolidatedResult {
	return model.ConsolidatedResult{
		StudentID:           student,
		SkillID:             skill,
		At:                  t0.Add(time.Duration(hours) * time.Hour),
		ObservationValue:    model.Float(2),
		SelfAssessmentValue: model.Float(3),
		PeerEvaluationCount: 0,
		Weights:             model.Weights{Observation: 2.0 / 3, Self: 1.0 / 3},
		ConsolidatedValue:   value,
		Level:               model.LevelMedium,
	}
}

// stores returns a constructor per backend so every case runs against both.
func stores(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"sqlite": func() Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "skillpulse.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return s
		},
	}
}

func TestStoreRecords(t *testing.T) {
	ctx := context.Background()

	for name, newStore := range stores(t) {
		Convey("Given a "+name+" store with records out of order", t, func() {
			s := newStore()
			defer s.Close()

			So(s.Append(ctx, assessment("o2", "s-1", "teamwork", model.SourceObservation, 3, 4)), ShouldBeNil)
			So(s.Append(ctx, assessment("o1", "s-1", "teamwork", model.SourceObservation, 1, 0)), ShouldBeNil)
			So(s.Append(ctx, assessment("s1", "s-1", "teamwork", model.SourceSelfAssessment, 2, 2)), ShouldBeNil)
			So(s.Append(ctx, assessment("p1", "s-1", "teamwork", model.SourcePeer, 1, 1)), ShouldBeNil)
			So(s.Append(ctx, assessment("p2", "s-1", "teamwork", model.SourcePeer, 2, 3)), ShouldBeNil)
			So(s.Append(ctx, assessment("p3", "s-1", "teamwork", model.SourcePeer, 3, 5)), ShouldBeNil)
			So(s.Append(ctx, assessment("x1", "s-1", "argument", model.SourceObservation, 2, 0)), ShouldBeNil)
			So(s.Append(ctx, assessment("y1", "s-2", "teamwork", model.SourceObservation, 2, 0)), ShouldBeNil)

			Convey("Then records come back oldest first", func() {
				recs, err := s.Records(ctx, "s-1", "teamwork")
				So(err, ShouldBeNil)
				So(len(recs), ShouldEqual, 6)
				So(recs[0].ID, ShouldEqual, "o1")
				So(recs[5].ID, ShouldEqual, "p3")
				So(recs[0].At.Equal(t0), ShouldBeTrue)
				So(recs[0].Source, ShouldEqual, model.SourceObservation)
			})

			Convey("Then the latest record per source is found", func() {
				a, err := s.Latest(ctx, "s-1", "teamwork", model.SourceObservation)
				So(err, ShouldBeNil)
				So(a.ID, ShouldEqual, "o2")
				So(a.Value, ShouldEqual, 3)
			})

			Convey("Then a missing source is reported as not found", func() {
				_, err := s.Latest(ctx, "s-1", "argument", model.SourcePeer)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})

			Convey("Then recent peers are newest first and limited", func() {
				peers, err := s.RecentPeers(ctx, "s-1", "teamwork", 2)
				So(err, ShouldBeNil)
				So(len(peers), ShouldEqual, 2)
				So(peers[0].ID, ShouldEqual, "p3")
				So(peers[1].ID, ShouldEqual, "p2")
			})

			Convey("Then a zero peer limit yields nothing", func() {
				peers, err := s.RecentPeers(ctx, "s-1", "teamwork", 0)
				So(err, ShouldBeNil)
				So(peers, ShouldBeEmpty)
			})

			Convey("Then skills and students are enumerated", func() {
				skills, err := s.Skills(ctx, "s-1")
				So(err, ShouldBeNil)
				So(skills, ShouldResemble, []string{"argument", "teamwork"})
				So(s.Students(ctx), ShouldEqual, 2)
			})

			Convey("Then an unknown student has no skills", func() {
				skills, err := s.Skills(ctx, "nobody")
				So(err, ShouldBeNil)
				So(skills, ShouldBeEmpty)
			})

			Convey("When the same id is appended twice", func() {
				err := s.Append(ctx, assessment("o1", "s-1", "teamwork", model.SourceObservation, 2, 9))

				Convey("Then it is rejected as a duplicate", func() {
					So(errors.Is(err, ErrDuplicate), ShouldBeTrue)
					recs, _ := s.Records(ctx, "s-1", "teamwork")
					So(len(recs), ShouldEqual, 6)
				})
			})
		})
	}
}

func TestStoreResults(t *testing.T) {
	ctx := context.Background()

	for name, newStore := range stores(t) {
		Convey("Given a "+name+" store with saved results", t, func() {
			s := newStore()
			defer s.Close()

			So(s.SaveResult(ctx, result("s-1", "teamwork", 2, 2.0)), ShouldBeNil)
			So(s.SaveResult(ctx, result("s-1", "teamwork", 0, 1.5)), ShouldBeNil)
			So(s.SaveResult(ctx, result("s-1", "teamwork", 1, 1.8)), ShouldBeNil)

			Convey("Then history is oldest first", func() {
				hist, err := s.History(ctx, "s-1", "teamwork", 0)
				So(err, ShouldBeNil)
				So(len(hist), ShouldEqual, 3)
				So(hist[0].ConsolidatedValue, ShouldEqual, 1.5)
				So(hist[2].ConsolidatedValue, ShouldEqual, 2.0)
			})

			Convey("Then optional values survive the round trip", func() {
				hist, _ := s.History(ctx, "s-1", "teamwork", 1)
				So(len(hist), ShouldEqual, 1)
				r := hist[0]
				So(*r.ObservationValue, ShouldEqual, 2.0)
				So(*r.SelfAssessmentValue, ShouldEqual, 3.0)
				So(r.PeerConsolidatedValue, ShouldBeNil)
				So(r.Level, ShouldEqual, model.LevelMedium)
				So(r.Weights.Observation, ShouldAlmostEqual, 2.0/3, 1e-12)
			})

			Convey("Then a limit keeps the newest results", func() {
				hist, err := s.History(ctx, "s-1", "teamwork", 2)
				So(err, ShouldBeNil)
				So(len(hist), ShouldEqual, 2)
				So(hist[0].ConsolidatedValue, ShouldEqual, 1.8)
				So(hist[1].ConsolidatedValue, ShouldEqual, 2.0)
			})

			Convey("When a result is saved again for the same instant", func() {
				So(s.SaveResult(ctx, result("s-1", "teamwork", 2, 2.5)), ShouldBeNil)

				Convey("Then it replaces the earlier one", func() {
					hist, _ := s.History(ctx, "s-1", "teamwork", 0)
					So(len(hist), ShouldEqual, 3)
					So(hist[2].ConsolidatedValue, ShouldEqual, 2.5)
				})
			})

			Convey("Then another skill has no history", func() {
				hist, err := s.History(ctx, "s-1", "argument", 0)
				So(err, ShouldBeNil)
				So(hist, ShouldBeEmpty)
			})
		})
	}
}

func TestHistoryCap(t *testing.T) {
	ctx := context.Background()
	capped := map[string]func() Store{
		"memory": func() Store { return NewMemoryStore(WithMaxHistory(2)) },
		"sqlite": func() Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "capped.db"), WithMaxHistory(2))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return s
		},
	}

	for name, newStore := range capped {
		Convey("Given a "+name+" store with a history cap of two", t, func() {
			s := newStore()
			defer s.Close()
			for i := 0; i < 5; i++ {
				So(s.SaveResult(ctx, result("s-1", "teamwork", i, float64(i))), ShouldBeNil)
			}
			So(s.SaveResult(ctx, result("s-2", "teamwork", 0, 1)), ShouldBeNil)

			Convey("Then only the newest results are kept", func() {
				hist, err := s.History(ctx, "s-1", "teamwork", 0)
				So(err, ShouldBeNil)
				So(len(hist), ShouldEqual, 2)
				So(hist[0].ConsolidatedValue, ShouldEqual, 3.0)
				So(hist[1].ConsolidatedValue, ShouldEqual, 4.0)
			})

			Convey("Then other student skills are untouched", func() {
				hist, err := s.History(ctx, "s-2", "teamwork", 0)
				So(err, ShouldBeNil)
				So(len(hist), ShouldEqual, 1)
			})

			Convey("Then re-saving a kept timestamp does not drop anything", func() {
				So(s.SaveResult(ctx, result("s-1", "teamwork", 4, 2.5)), ShouldBeNil)
				hist, _ := s.History(ctx, "s-1", "teamwork", 0)
				So(len(hist), ShouldEqual, 2)
				So(hist[1].ConsolidatedValue, ShouldEqual, 2.5)
			})
		})
	}

	Convey("Given a store without options", t, func() {
		s := NewMemoryStore()
		for i := 0; i < DefaultMaxHistory+10; i++ {
			So(s.SaveResult(ctx, result("s-1", "teamwork", i, 2)), ShouldBeNil)
		}

		Convey("Then the default cap applies", func() {
			hist, _ := s.History(ctx, "s-1", "teamwork", 0)
			So(len(hist), ShouldEqual, DefaultMaxHistory)
		})
	})
}

func TestMemoryStoreOptions(t *testing.T) {
	ctx := context.Background()

	Convey("Given a closed memory store", t, func() {
		s := NewMemoryStore()
		So(s.Close(), ShouldBeNil)

		Convey("Then calls fail with ErrClosed", func() {
			So(errors.Is(s.Append(ctx, assessment("a", "s", "k", model.SourcePeer, 1, 0)), ErrClosed), ShouldBeTrue)
			_, err := s.Records(ctx, "s", "k")
			So(errors.Is(err, ErrClosed), ShouldBeTrue)
		})
	})

	Convey("Given concurrent appends", t, func() {
		s := NewMemoryStore()
		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					_ = s.Append(ctx, assessment(fmt.Sprintf("a-%d-%d", g, i), "s-1", "teamwork", model.SourcePeer, 1+i%3, i))
				}
			}(g)
		}
		wg.Wait()

		Convey("Then every record is stored in order", func() {
			recs, _ := s.Records(ctx, "s-1", "teamwork")
			So(len(recs), ShouldEqual, 400)
			for i := 1; i < len(recs); i++ {
				So(recs[i].At.Before(recs[i-1].At), ShouldBeFalse)
			}
		})
	})
}

func TestOpen(t *testing.T) {
	Convey("Given store drivers", t, func() {
		Convey("When opening memory", func() {
			s, err := Open("memory", "")
			So(err, ShouldBeNil)
			So(s, ShouldHaveSameTypeAs, &MemoryStore{})
		})

		Convey("When opening sqlite", func() {
			s, err := Open("sqlite", filepath.Join(t.TempDir(), "x.db"))
			So(err, ShouldBeNil)
			So(s.Close(), ShouldBeNil)
		})

		Convey("When opening sqlite without a path", func() {
			_, err := Open("sqlite", "")
			So(err, ShouldNotBeNil)
		})

		Convey("When opening an unknown driver", func() {
			_, err := Open("postgres", "")
			So(errors.Is(err, ErrUnknownDriver), ShouldBeTrue)
		})
	})
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()

	Convey("Given a sqlite file written by one store", t, func() {
		path := filepath.Join(t.TempDir(), "skillpulse.db")
		s1, err := NewSQLiteStore(path)
		So(err, ShouldBeNil)
		So(s1.Append(ctx, assessment("o1", "s-1", "teamwork", model.SourceObservation, 2, 0)), ShouldBeNil)
		So(s1.Close(), ShouldBeNil)

		Convey("Then a second store sees the data after migrating again", func() {
			s2, err := NewSQLiteStore(path)
			So(err, ShouldBeNil)
			defer s2.Close()
			recs, err := s2.Records(ctx, "s-1", "teamwork")
			So(err, ShouldBeNil)
			So(len(recs), ShouldEqual, 1)
		})
	})
}
