package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dedupe "github.com/okian/sudea/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		Convey("When a key is recorded twice", func() {
			first := d.SeenAndRecord(ctx, "a")
			second := d.SeenAndRecord(ctx, "a")

			Convey("Then only the second call reports it as seen", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a key is unrecorded", func() {
			d.SeenAndRecord(ctx, "a")
			d.Unrecord(ctx, "a")
			d.Unrecord(ctx, "missing")

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
			})
		})
	})

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for _, k := range []string{"a", "b", "c", "d"} {
			d.SeenAndRecord(ctx, k)
		}

		Convey("Then the oldest key is evicted first", func() {
			So(d.Size(), ShouldEqual, 3)
			So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
			So(d.SeenAndRecord(ctx, "d"), ShouldBeTrue)
		})

		Convey("And an unrecorded key frees its slot", func() {
			d.Unrecord(ctx, "c")
			d.SeenAndRecord(ctx, "e")
			So(d.SeenAndRecord(ctx, "b"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "d"), ShouldBeTrue)
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 20000; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("k%d", i))
		}
		So(d.Size(), ShouldEqual, 20000)
		So(d.SeenAndRecord(ctx, "k0"), ShouldBeTrue)
	})

	Convey("Given concurrent callers racing on the same keys", t, func() {
		d := dedupe.NewInMemoryDeduper()
		var fresh atomic.Int64
		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					if !d.SeenAndRecord(ctx, fmt.Sprintf("k%d", i)) {
						fresh.Add(1)
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each key is fresh exactly once", func() {
			So(fresh.Load(), ShouldEqual, 100)
			So(d.Size(), ShouldEqual, 100)
		})
	})
}

func TestFingerprint(t *testing.T) {
	Convey("Given two versions of the same file", t, func() {
		mod := time.Unix(1700000000, 0)
		a := dedupe.Fingerprint("/cam/x.jpg", 10, mod)

		So(dedupe.Fingerprint("/cam/x.jpg", 10, mod), ShouldEqual, a)
		So(dedupe.Fingerprint("/cam/x.jpg", 11, mod), ShouldNotEqual, a)
		So(dedupe.Fingerprint("/cam/x.jpg", 10, mod.Add(time.Second)), ShouldNotEqual, a)
		So(dedupe.Fingerprint("/cam/y.jpg", 10, mod), ShouldNotEqual, a)
	})
}
