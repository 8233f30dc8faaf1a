package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/xiaohai-huang/XD6/config"
	"github.com/xiaohai-huang/XD6/gateway"
	"github.com/xiaohai-huang/XD6/joint"
	"github.com/xiaohai-huang/XD6/kinematics"
	"github.com/xiaohai-huang/XD6/limitswitch"
	"github.com/xiaohai-huang/XD6/robot"
	"github.com/xiaohai-huang/XD6/serial"
)

var (
	device     = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud       = flag.Int("baud", serial.FirmataBaud, "Baud rate")
	configPath = flag.String("config", "", "JSON joint configuration (defaults built in)")
	home       = flag.Bool("home", false, "Run the homing cycle")
	moveTo     = flag.String("move-to", "", "Linear move target pose: x,y,z,rx,ry,rz")
	verbose    = flag.Bool("verbose", false, "Enable debug output")
)

func main() {
	flag.Parse()
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	arm := config.Default()
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			log.Fatalf("failed to read config: %s", err)
		}
		arm, err = config.Load(data)
		if err != nil {
			log.Fatalf("failed to load config: %s", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		select {
		case <-c:
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Infof("opening port %s", *device)
	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud
	port, err := serial.Open(cfg)
	if err != nil {
		log.Fatalf("failed to open serial port: %s", err)
	}

	gw := gateway.New(port)
	defer gw.Close()
	go func() {
		<-gw.Down()
		if err := gw.Err(); err != nil {
			log.Fatalf("gateway down: %s", err)
		}
	}()

	r, err := buildRobot(arm, gw)
	if err != nil {
		log.Fatalf("failed to build robot: %s", err)
	}

	log.Info("enabling stepper drivers")
	if err := r.EnableDrivers(true); err != nil {
		log.Fatalf("failed to enable drivers: %s", err)
	}
	defer func() {
		if err := r.EnableDrivers(false); err != nil {
			log.Warnf("failed to disable drivers: %s", err)
		}
	}()

	if *home {
		log.Info("homing")
		if err := r.Home(ctx); err != nil {
			log.Fatalf("homing failed: %s", err)
		}
		printPose(r)
	}

	if *moveTo != "" {
		target, err := parsePose(*moveTo)
		if err != nil {
			log.Fatalf("bad -move-to: %s", err)
		}
		log.Infof("linear move to %+v", target)
		if err := r.MoveL(ctx, target); err != nil {
			log.Fatalf("move failed: %s", err)
		}
		printPose(r)
	}

	if !*home && *moveTo == "" {
		angles, err := r.ReadAngles(ctx)
		if err != nil {
			log.Fatalf("failed to read positions: %s", err)
		}
		log.Infof("joint angles: %.3f", angles)
		printPose(r)
	}
}

// buildRobot assembles the joint controllers, wiring each limit switch to
// its firmata input pin.
func buildRobot(arm config.Arm, gw *gateway.Gateway) (*robot.Robot, error) {
	var joints [6]*joint.Controller
	for i, jc := range arm.Joints {
		sw := limitswitch.New(jc.Name)
		if err := gw.WatchPin(jc.HomeSwitchPin, sw.SetLevel); err != nil {
			return nil, err
		}
		c, err := joint.New(jc, gw, sw)
		if err != nil {
			return nil, err
		}
		joints[i] = c
	}
	return robot.New(joints, arm.Engine()), nil
}

func printPose(r *robot.Robot) {
	p := r.Pose()
	log.Infof("pose: x=%.3f y=%.3f z=%.3f rx=%.3f ry=%.3f rz=%.3f", p.X, p.Y, p.Z, p.RX, p.RY, p.RZ)
}

func parsePose(s string) (kinematics.Pose, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 6 {
		return kinematics.Pose{}, fmt.Errorf("want 6 comma-separated values, got %d", len(parts))
	}
	var vals [6]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return kinematics.Pose{}, err
		}
		vals[i] = v
	}
	return kinematics.Pose{X: vals[0], Y: vals[1], Z: vals[2], RX: vals[3], RY: vals[4], RZ: vals[5]}, nil
}
