// Command publisher is a minimal example client that connects to a
// broker and publishes one message per tick on a topic.
package main

import (
	"flag"
	"log"
	"time"

	mqtt "github.com/lanternmq/mqttgo"
)

func main() {
	broker := flag.String("broker", "tcp://127.0.0.1:1883", "broker URI")
	topic := flag.String("topic", "mqttgo/example", "topic to publish on")
	qos := flag.Int("qos", 1, "publish QoS (0, 1 or 2)")
	interval := flag.Duration("interval", time.Second, "interval between publishes")
	flag.Parse()

	opts := mqtt.NewClientOptions().
		AddBroker(*broker).
		SetClientID("mqttgo-publisher").
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		log.Fatalf("connect failed: %v", token.Error())
	}
	defer client.Disconnect(250)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	var n int
	for range ticker.C {
		n++
		payload := time.Now().Format(time.RFC3339)
		token := client.Publish(*topic, byte(*qos), false, payload)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("publish %d failed: %v", n, err)
			continue
		}
		log.Printf("published %d: %s", n, payload)
	}
}
