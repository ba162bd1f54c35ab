package main

import (
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
)

func TestParseFlags(t *testing.T) {
	convey.Convey("Given load test flags", t, func() {
		convey.Convey("When none are passed", func() {
			cfg, err := parseFlags(nil)
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.BaseURL, convey.ShouldEqual, "http://localhost:9080")
			convey.So(cfg.Users, convey.ShouldEqual, defaultUsers)
			convey.So(cfg.Roles, convey.ShouldBeNil)
			convey.So(cfg.Timeout, convey.ShouldEqual, defaultTimeout)
		})

		convey.Convey("When role limits and shorthands are passed", func() {
			cfg, err := parseFlags([]string{"--roles", "Tank=2,Healer=3", "-w", "3", "-v", "--timeout", "2s"})
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Roles, convey.ShouldResemble, map[string]int{"Tank": 2, "Healer": 3})
			convey.So(cfg.Workers, convey.ShouldEqual, 3)
			convey.So(cfg.Verbose, convey.ShouldBeTrue)
			convey.So(cfg.Timeout, convey.ShouldEqual, 2*time.Second)
		})

		convey.Convey("When a role limit is not positive", func() {
			_, err := parseFlags([]string{"--roles", "Tank=0"})
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When a role limit is not a number", func() {
			_, err := parseFlags([]string{"--roles", "Tank=x"})
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When an unknown flag is passed", func() {
			_, err := parseFlags([]string{"--events", "10"})
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}
