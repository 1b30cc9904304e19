package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/asdine/storm"
	"github.com/caarlos0/env"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/karlmdavis/gorover/rover"
	"github.com/karlmdavis/gorover/rover/hardware"
)

type EnvConfig struct {
	JWT_ISSUER string `env:"ROVER_NAME" envDefault:"gorover"`
	BRICK      bool   `env:"ON_BRICK" envDefault:"0"`
	DEBUG      bool   `env:"DEBUG" envDefault:"0"`
	HTMLDIR    string `env:"HTMLDIR" envDefault:"./frontend/"`
	DB         *storm.DB
	Conductor  *Conductor
	Rover      rover.Rover
	Simulated  bool
}

var (
	ENV *EnvConfig
)

func init() {
	ENV = new(EnvConfig)
	env.Parse(ENV)

	// setup database
	// the path depends on whether we are running on the brick itself
	var dbFile string
	if ENV.BRICK {
		dbFile = "/home/robot/gorover.db"
	} else {
		dbFile, _ = filepath.Abs("./tmp/dev.db")
		dir := filepath.Dir(dbFile)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			os.Mkdir(dir, 0755)
		}
	}

	db, err := openDb(dbFile)
	if err != nil {
		panic(err)
	}
	ENV.DB = db

	return
}

func main() {
	// process flags
	simulated := flag.Bool("sim", false, "Run the rover in simulator mode")
	port := flag.String("port", "0.0.0.0:80", "Specify the ip:port to listen on")
	configPath := flag.String("config", "", "Path to the rover yaml config")
	flag.Parse()

	r := chi.NewRouter()

	// A good base middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Recoverer) // make sure this is last

	defer ENV.DB.Close() // close database when finished

	// Locate the rover config. A missing default file just means the stock
	// wiring; a missing explicit -config is an error surfaced by LoadConfig.
	filename := *configPath
	if filename == "" {
		if ENV.BRICK {
			filename = "/home/robot/gorover.yaml"
		} else {
			filename, _ = filepath.Abs("./gorover.yaml")
		}
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			filename = ""
		}
	}

	config := rover.DefaultConfig()
	if filename != "" {
		var err error
		config, err = rover.LoadConfig(filename)
		if err != nil {
			panic(fmt.Sprintf("Unable to load config: %v", err))
		}
	}

	ENV.Simulated = *simulated
	if ENV.Simulated {
		println("Creating simulator")
		config.Version = rover.VersionSimulated
	}

	pilot, pad, err := rover.New(config)
	if err != nil {
		panic(fmt.Sprintf("Unable to initialize rover: %v", err))
	}
	ENV.Rover = pilot

	ENV.Conductor = NewConductor(pilot)
	go ENV.Conductor.UpdateClients()

	if pad != nil {
		go watchButtons(pad, config.Buttons.Shutdown)
	}

	//---
	// Create a local shell
	//---
	{
		modeNames := func([]string) []string {
			return []string{"forward", "backward", "stopped"}
		}

		shell := ishell.New()
		shell.Println("gorover development shell")
		shell.ShowPrompt(true)
		shell.AddCmd(&ishell.Cmd{
			Name: "createsuperuser",
			Help: "createsuperuser <email> <password>",
			Func: func(c *ishell.Context) {
				// disable the '>>>' for cleaner same line input.
				c.ShowPrompt(false)
				defer c.ShowPrompt(true) // yes, revert when done.

				// get email
				var email string
				if len(c.Args) >= 1 {
					email = c.Args[0]
				} else {
					c.Print("Email: ")
					email = c.ReadLine()
				}

				// get password
				var password string
				if len(c.Args) >= 2 {
					password = c.Args[1]
				} else {
					c.Print("Password: ")
					password = c.ReadPassword()
				}

				// create user
				user := &User{
					Email: email,
					Name:  email,
					Admin: true,
				}
				user.SetPassword([]byte(password))
				err := ENV.DB.Save(user)
				if err != nil {
					panic(err)
				}

				c.Println("Superuser created")
			},
		})

		// Rover specific commands
		shell.AddCmd(&ishell.Cmd{
			Name:      "drive",
			Completer: modeNames,
			Help:      "drive <mode> [speed] [direction]",
			Func: func(c *ishell.Context) {
				if len(c.Args) < 1 {
					c.Err(errors.New("usage: drive <mode> [speed] [direction]"))
					return
				}
				mode, err := rover.ParseDriveMode(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}

				cmd := ENV.Rover.Command()
				cmd.Mode = mode
				if len(c.Args) >= 2 {
					cmd.Speed, _ = strconv.Atoi(c.Args[1])
				}
				if len(c.Args) >= 3 {
					cmd.TurnBias, _ = strconv.Atoi(c.Args[2])
				}

				c.Printf("Driving %s at %d, direction %d\n", cmd.Mode, cmd.Speed, cmd.TurnBias)
				if err = ENV.Rover.Apply(cmd); err != nil {
					c.Err(err)
				}
			},
		})

		shell.AddCmd(&ishell.Cmd{
			Name: "speed",
			Help: "speed <0-100>",
			Func: func(c *ishell.Context) {
				if len(c.Args) < 1 {
					c.Err(errors.New("usage: speed <0-100>"))
					return
				}
				speed, _ := strconv.Atoi(c.Args[0])
				if err := ENV.Rover.SetSpeed(speed); err != nil {
					c.Err(err)
				}
			},
		})

		shell.AddCmd(&ishell.Cmd{
			Name: "direction",
			Help: "direction <-100..100>",
			Func: func(c *ishell.Context) {
				if len(c.Args) < 1 {
					c.Err(errors.New("usage: direction <-100..100>"))
					return
				}
				bias, _ := strconv.Atoi(c.Args[0])
				if err := ENV.Rover.SetTurnBias(bias); err != nil {
					c.Err(err)
				}
			},
		})

		shell.AddCmd(&ishell.Cmd{
			Name:      "nudge",
			Completer: modeNames,
			Help:      "nudge <forward|backward>",
			Func: func(c *ishell.Context) {
				if len(c.Args) < 1 {
					c.Err(errors.New("usage: nudge <forward|backward>"))
					return
				}
				mode, err := rover.ParseDriveMode(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				if err = ENV.Rover.Nudge(mode); err != nil {
					c.Err(err)
				}
			},
		})

		shell.AddCmd(&ishell.Cmd{
			Name: "pivot",
			Help: "pivot <left|right>",
			Func: func(c *ishell.Context) {
				if len(c.Args) < 1 {
					c.Err(errors.New("usage: pivot <left|right>"))
					return
				}
				if err := ENV.Rover.Pivot(c.Args[0]); err != nil {
					c.Err(err)
				}
			},
		})

		shell.AddCmd(&ishell.Cmd{
			Name: "auto",
			Help: "auto <start|stop>",
			Func: func(c *ishell.Context) {
				if len(c.Args) < 1 {
					c.Err(errors.New("usage: auto <start|stop>"))
					return
				}
				switch c.Args[0] {
				case "start":
					if err := ENV.Rover.StartAuto(); err != nil {
						c.Err(err)
					}
				case "stop":
					if err := ENV.Rover.StopAuto(); err != nil {
						c.Err(err)
					}
				default:
					c.Err(errors.New("usage: auto <start|stop>"))
				}
			},
		})

		shell.AddCmd(&ishell.Cmd{
			Name: "state",
			Help: "Reads the current state of the rover",
			Func: func(c *ishell.Context) {
				out, _ := json.MarshalIndent(ENV.Rover.Status(), "", "  ")
				c.Println(string(out))
			},
		})

		shell.AddCmd(&ishell.Cmd{
			Name: "stop",
			Help: "Brake both wheels",
			Func: func(c *ishell.Context) {
				if err := ENV.Rover.SetMode(rover.Stopped); err != nil {
					c.Err(err)
				}
			},
		})

		// Start an instance of the shell so it can be controlled from the CLI
		go shell.Start()
	}

	//---
	// Build the API routes
	//---
	r.Route("/api", func(r chi.Router) {
		// login
		r.Post("/login", Login)

		r.Route("/", func(r chi.Router) {
			// Seek, verify and validate JWT tokens
			r.Use(ValidateJWT)

			r.Get("/refresh_token", JWTRefresh)
			r.Get("/status", GetStatus)

			r.Route("/drive", func(r chi.Router) {
				r.Post("/mode", PostDriveMode)
				r.Post("/speed", PostDriveSpeed)
				r.Post("/direction", PostDriveDirection)
				r.Post("/nudge", PostDriveNudge)
				r.Post("/pivot", PostDrivePivot)
			})

			r.Route("/autopilot", func(r chi.Router) {
				r.Post("/start", PostAutopilotStart)
				r.Post("/stop", PostAutopilotStop)
			})
		})
	})

	// Add websocket routes
	r.Route("/ws", func(r chi.Router) {
		if ENV.BRICK && !ENV.DEBUG {
			// Enable JWT validation in production
			r.Use(ValidateJWT)
		} else {
			fmt.Println("Running in debug mode. Authentication disabled.")
		}

		r.Get("/echo", EchoHandler)
		r.Get("/state", StateHandler)
	})

	// add static base routes
	FileServer(r, "/", http.Dir(ENV.HTMLDIR))

	fmt.Println("Listening on port", *port)
	if err := http.ListenAndServe(*port, r); err != nil {
		log.Fatal(err)
	}
}

// watchButtons polls the brick pad once a second. The shutdown button ends
// the process; any other button toggles an autopilot run. After a toggle the
// watcher sleeps an extra beat so a long press does not double trigger.
func watchButtons(pad hardware.ButtonPad, shutdown string) {
	for {
		pressed, err := pad.Pressed()
		if err != nil {
			log.Printf("unable to read brick buttons: %v", err)
			return
		}

		if len(pressed) > 0 {
			for _, name := range pressed {
				if name == shutdown {
					log.Printf("%s pressed, shutting down", shutdown)
					ENV.Rover.StopAuto()
					ENV.DB.Close()
					os.Exit(0)
				}
			}

			if ENV.Rover.AutoActive() {
				if err := ENV.Rover.StopAuto(); err != nil {
					log.Printf("autopilot stop: %v", err)
				}
			} else if err := ENV.Rover.StartAuto(); err != nil {
				log.Printf("unable to start autopilot: %v", err)
			}
			time.Sleep(time.Second)
		}

		time.Sleep(time.Second)
	}
}

func openDb(dbFile string) (db *storm.DB, err error) {
	db, err = storm.Open(dbFile)
	if err != nil {
		return
	}

	// call inits for each type
	if err := db.Init(&User{}); err != nil {
		return nil, err
	}

	return
}

// FileServer conveniently sets up a http.FileServer handler to serve
// static files from a http.FileSystem.
func FileServer(r chi.Router, path string, root http.FileSystem) {
	if strings.ContainsAny(path, "{}*") {
		panic("FileServer does not permit URL parameters.")
	}

	fs := http.StripPrefix(path, http.FileServer(root))

	if path != "/" && path[len(path)-1] != '/' {
		r.Get(path, http.RedirectHandler(path+"/", 301).ServeHTTP)
		path += "/"
	}
	path += "*"

	r.Get(path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.ServeHTTP(w, r)
	}))
}
