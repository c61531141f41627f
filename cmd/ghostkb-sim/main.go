package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/golang/glog"

	"github.com/robotalks/ghostkb/pkg/bootloader"
	"github.com/robotalks/ghostkb/pkg/firmware"
	"github.com/robotalks/ghostkb/pkg/framework"
	"github.com/robotalks/ghostkb/pkg/interboard"
	"github.com/robotalks/ghostkb/pkg/interboard/mqtt"
	"github.com/robotalks/ghostkb/pkg/usb"
)

// exit code when a half enters the bootloader.
const bootloaderExitCode = 3

var configFile string

func init() {
	firmware.SetupFlags()
	flag.StringVar(&configFile, "config", configFile, "TOML config file, applied after flags.")
}

func hardware(conf *firmware.Config, link interboard.Link) (firmware.Hardware, *usb.Server) {
	hw := firmware.Hardware{
		Pins: conf.Pins(),
		Link: link,
		ROM:  bootloader.ExitROM{Code: bootloaderExitCode},
	}
	if conf.TokenFile != "" {
		hw.Storage = &bootloader.FileStorage{Path: conf.TokenFile}
	} else {
		hw.Storage = &bootloader.MemStorage{}
	}
	var server *usb.Server
	if conf.USB {
		server = usb.NewServer(conf.USBAddr)
		hw.USB = server
	}
	return hw, server
}

// boot runs the handshake and detection. The returned tasks are spawned
// once every simulated half has booted.
func boot(conf *firmware.Config, link interboard.Link) (*firmware.Firmware, []framework.Task) {
	hw, server := hardware(conf, link)
	fw, err := firmware.Boot(conf, hw)
	if err != nil {
		log.Fatalf("boot %s half: %v", conf.Side, err)
	}
	tasks := []framework.Task{framework.NamedFunc(conf.Side.String(), fw.Run)}
	if server != nil {
		tasks = append(tasks, server)
	}
	return fw, tasks
}

func main() {
	flag.Parse()
	conf := firmware.NewConfig()
	if configFile != "" {
		if err := conf.LoadFile(configFile); err != nil {
			log.Fatalln(err)
		}
	}

	var halves []*firmware.Firmware
	var tasks []framework.Task
	bootHalf := func(conf *firmware.Config, link interboard.Link) {
		fw, halfTasks := boot(conf, link)
		halves = append(halves, fw)
		tasks = append(tasks, halfTasks...)
	}
	if conf.LinkURL == "pipe" {
		peer := *conf
		peer.Side, peer.USB = conf.Side.Peer(), false
		peer.DeviceID = fmt.Sprintf("%s-%s", conf.DeviceID, peer.Side)
		if peer.TokenFile != "" {
			peer.TokenFile += "." + peer.Side.String()
		}
		if !conf.USB {
			glog.Warning("no half has usb: nobody drives the link")
		}
		linkA, linkB := interboard.Pipe()
		bootHalf(conf, linkA)
		bootHalf(&peer, linkB)
	} else {
		link, err := mqtt.DialLink(conf.LinkURL, conf.Side)
		if err != nil {
			log.Fatalln(err)
		}
		bootHalf(conf, link)
	}

	spawner := framework.NewSpawner().HandleSignals().Go(tasks...)
	err := spawner.Wait()
	for _, fw := range halves {
		stats := fw.Stats()
		glog.Infof("%s: pool %+v", fw.Info.Side, stats.Pool)
		glog.Infof("%s: transport %+v", fw.Info.Side, stats.Transport)
		glog.Infof("%s: distributor %+v", fw.Info.Side, stats.Distributor)
	}
	glog.Flush()
	if err != nil {
		log.Fatalln(err)
	}
}
