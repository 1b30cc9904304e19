package rover

import (
	"fmt"
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v2"
)

// Config versions understood by New.
const (
	VersionEV3       = 1
	VersionSimulated = -1
)

// Duration wraps time.Duration so the yaml config can say "1500ms" or, for
// compatibility with the old configs, a plain number of milliseconds.
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		v, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("unable to parse duration '%s': %v", s, perr)
		}
		*d = Duration(v)
		return nil
	}

	var ms int64
	if err := unmarshal(&ms); err != nil {
		return err
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

type MotorsConfig struct {
	Driver string `yaml:"driver"`
	Left   string `yaml:"left"`
	Right  string `yaml:"right"`
}

type SensorConfig struct {
	Port   string `yaml:"port"`
	Driver string `yaml:"driver"`
}

type ButtonsConfig struct {
	Watch    bool   `yaml:"watch"`
	Device   string `yaml:"device"`   // empty means the stock evdev path
	Sound    string `yaml:"sound"`    // speaker event device for the indicator
	Shutdown string `yaml:"shutdown"` // button that exits the process
}

type ChassisConfig struct {
	WheelRadiusMm float64 `yaml:"wheel_radius_mm"`
	TrackMm       float64 `yaml:"track_mm"`
}

func (c ChassisConfig) Chassis() Chassis {
	return Chassis{
		WheelRadius: c.WheelRadiusMm / 1000,
		Track:       c.TrackMm / 1000,
	}
}

type DriveConfig struct {
	PollInterval   Duration `yaml:"poll_interval"`
	StopDistanceCm float64  `yaml:"stop_distance_cm"`
	SlowDistanceCm float64  `yaml:"slow_distance_cm"`
	BackupSpeed    int      `yaml:"backup_speed"`
	BackupTime     Duration `yaml:"backup_time"`
	PivotSpeed     int      `yaml:"pivot_speed"`
	PivotTimeMin   Duration `yaml:"pivot_time_min"`
	PivotTimeMax   Duration `yaml:"pivot_time_max"`
}

// withDefaults fills every unset tuning value with the stock numbers so a
// hand built config only needs to name what it changes.
func (c DriveConfig) withDefaults() DriveConfig {
	if c.PollInterval == 0 {
		c.PollInterval = Duration(POLL_INTERVAL)
	}
	if c.StopDistanceCm == 0 {
		c.StopDistanceCm = STOP_DISTANCE_CM
	}
	if c.SlowDistanceCm == 0 {
		c.SlowDistanceCm = SLOW_DISTANCE_CM
	}
	if c.BackupSpeed == 0 {
		c.BackupSpeed = BACKUP_SPEED
	}
	if c.BackupTime == 0 {
		c.BackupTime = Duration(BACKUP_TIME)
	}
	if c.PivotSpeed == 0 {
		c.PivotSpeed = PIVOT_SPEED
	}
	if c.PivotTimeMin == 0 {
		c.PivotTimeMin = Duration(PIVOT_TIME_MIN)
	}
	if c.PivotTimeMax == 0 {
		c.PivotTimeMax = Duration(PIVOT_TIME_MAX)
	}
	return c
}

type RoverConfig struct {
	Version int `yaml:"version"`

	Motors MotorsConfig `yaml:"motors"`

	Sensors struct {
		Ultrasonic SensorConfig `yaml:"ultrasonic"`
		Touch      SensorConfig `yaml:"touch"`
	} `yaml:"sensors"`

	Buttons ButtonsConfig `yaml:"buttons"`
	Chassis ChassisConfig `yaml:"chassis"`
	Drive   DriveConfig   `yaml:"drive"`
}

// DefaultConfig is the wiring of the reference build: large motors on ports
// B and C, rangefinder on 4, bumper on 1.
func DefaultConfig() (config *RoverConfig) {
	config = &RoverConfig{Version: VersionEV3}
	config.Motors = MotorsConfig{
		Driver: "lego-ev3-l-motor",
		Left:   "ev3-ports:outB",
		Right:  "ev3-ports:outC",
	}
	config.Sensors.Ultrasonic = SensorConfig{Port: "ev3-ports:in4", Driver: "lego-ev3-us"}
	config.Sensors.Touch = SensorConfig{Port: "ev3-ports:in1", Driver: "lego-ev3-touch"}
	config.Buttons = ButtonsConfig{Watch: true, Shutdown: "backspace"}
	config.Chassis = ChassisConfig{WheelRadiusMm: 28, TrackMm: 120}
	config.Drive = DriveConfig{}.withDefaults()
	return
}

// LoadConfig reads a yaml config laid over the defaults.
func LoadConfig(filename string) (config *RoverConfig, err error) {
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to read config %s: %v", filename, err)
	}

	config = DefaultConfig()
	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("unable to parse config %s: %v", filename, err)
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}
	return
}

func (c *RoverConfig) Validate() (err error) {
	switch c.Version {
	case VersionSimulated:
		// nothing to wire

	case VersionEV3:
		if c.Motors.Left == "" || c.Motors.Right == "" || c.Motors.Driver == "" {
			return fmt.Errorf("unable to use motor config: left, right and driver are required")
		}
		if c.Sensors.Ultrasonic.Port == "" || c.Sensors.Ultrasonic.Driver == "" {
			return fmt.Errorf("unable to use sensor config: ultrasonic port and driver are required")
		}
		if c.Sensors.Touch.Port == "" || c.Sensors.Touch.Driver == "" {
			return fmt.Errorf("unable to use sensor config: touch port and driver are required")
		}

	default:
		return fmt.Errorf("unable to work with version %d", c.Version)
	}

	drive := c.Drive.withDefaults()
	if drive.PivotTimeMax < drive.PivotTimeMin {
		return fmt.Errorf("unable to use drive config: pivot time bounds are inverted")
	}
	if drive.SlowDistanceCm <= drive.StopDistanceCm {
		return fmt.Errorf("unable to use drive config: slow distance must sit beyond stop distance")
	}
	return
}
