package rover

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"gopkg.in/yaml.v2"
)

const testYaml = `
version: 1
motors:
  driver: lego-ev3-l-motor
  left: ev3-ports:outB
  right: ev3-ports:outC
sensors:
  ultrasonic:
    port: ev3-ports:in4
    driver: lego-ev3-us
  touch:
    port: ev3-ports:in1
    driver: lego-ev3-touch
buttons:
  watch: true
  shutdown: backspace
chassis:
  wheel_radius_mm: 28
  track_mm: 120
drive:
  poll_interval: 250ms
  stop_distance_cm: 20
  backup_time: 2000
`

func TestRoverConfigParsing(t *testing.T) {
	Convey("parsing is successful", t, func() {
		config := DefaultConfig()
		err := yaml.Unmarshal([]byte(testYaml), config)
		So(err, ShouldBeNil)
		So(config.Validate(), ShouldBeNil)

		Convey("durations take go syntax", func() {
			So(time.Duration(config.Drive.PollInterval), ShouldEqual, 250*time.Millisecond)
		})

		Convey("durations take legacy millisecond numbers", func() {
			So(time.Duration(config.Drive.BackupTime), ShouldEqual, 2*time.Second)
		})

		Convey("set values override the defaults, unset ones keep them", func() {
			So(config.Drive.StopDistanceCm, ShouldEqual, 20)
			So(config.Drive.SlowDistanceCm, ShouldEqual, SLOW_DISTANCE_CM)
			So(config.Drive.PivotSpeed, ShouldEqual, PIVOT_SPEED)
		})

		Convey("the chassis comes out in meters", func() {
			c := config.Chassis.Chassis()
			So(c.WheelRadius, ShouldAlmostEqual, 0.028, 1e-9)
			So(c.Track, ShouldAlmostEqual, 0.12, 1e-9)
		})
	})

	Convey("an unknown version is refused", t, func() {
		config := DefaultConfig()
		config.Version = 7
		So(config.Validate(), ShouldNotBeNil)
	})

	Convey("a hardware config missing ports is refused", t, func() {
		config := DefaultConfig()
		config.Motors.Left = ""
		So(config.Validate(), ShouldNotBeNil)

		config = DefaultConfig()
		config.Sensors.Touch.Port = ""
		So(config.Validate(), ShouldNotBeNil)
	})

	Convey("inverted pivot bounds are refused", t, func() {
		config := DefaultConfig()
		config.Drive.PivotTimeMin = Duration(800 * time.Millisecond)
		config.Drive.PivotTimeMax = Duration(400 * time.Millisecond)
		So(config.Validate(), ShouldNotBeNil)
	})

	Convey("a stop distance beyond the slow distance is refused", t, func() {
		config := DefaultConfig()
		config.Drive.StopDistanceCm = 50
		So(config.Validate(), ShouldNotBeNil)
	})

	Convey("the simulator version needs no wiring", t, func() {
		config := &RoverConfig{Version: VersionSimulated}
		So(config.Validate(), ShouldBeNil)
	})
}

func TestDurationYaml(t *testing.T) {
	Convey("a bad duration string reports what it saw", t, func() {
		var d struct {
			V Duration `yaml:"v"`
		}
		err := yaml.Unmarshal([]byte("v: quickly"), &d)
		So(err, ShouldNotBeNil)
	})
}
