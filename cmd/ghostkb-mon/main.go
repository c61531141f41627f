package main

import (
	"flag"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/robotalks/ghostkb/pkg/interboard"
	"github.com/robotalks/ghostkb/pkg/interboard/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/ghostkb/"
)

func init() {
	if val := os.Getenv("GHOSTKB_LINK_URL"); strings.HasPrefix(val, "mqtt") {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}

	var lock sync.Mutex
	parsers := make(map[string]*interboard.Parser)
	q.Sub(mqtt.LinkTopicPrefix+"+", mqtt.Handler(func(topic string, payload []byte) {
		lock.Lock()
		defer lock.Unlock()
		p := parsers[topic]
		if p == nil {
			p = &interboard.Parser{}
			parsers[topic] = p
		}
		frames, errs, skipped := p.ParseAll(payload)
		for _, f := range frames {
			log.Printf("%s: %s", topic, f)
		}
		for _, err := range errs {
			log.Printf("%s: bad frame: %v", topic, err)
		}
		if skipped > 0 {
			log.Printf("%s: skipped %d bytes", topic, skipped)
		}
	}))

	token := q.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		log.Fatalln(err)
	}
	<-(chan struct{})(nil)
}
