// Command subscriber is a minimal example client that connects to a
// broker, subscribes to a topic filter, and logs every message received.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/lanternmq/mqttgo"
)

func main() {
	broker := flag.String("broker", "tcp://127.0.0.1:1883", "broker URI")
	filter := flag.String("filter", "mqttgo/#", "topic filter to subscribe to")
	qos := flag.Int("qos", 1, "subscribe QoS (0, 1 or 2)")
	flag.Parse()

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		log.Printf("[%s] qos=%d retained=%t: %s", msg.Topic(), msg.Qos(), msg.Retained(), msg.Payload())
	}

	opts := mqtt.NewClientOptions().
		AddBroker(*broker).
		SetClientID("mqttgo-subscriber").
		SetAutoReconnect(true).
		SetOnConnectHandler(func(c mqtt.Client) {
			if token := c.Subscribe(*filter, byte(*qos), handler); token.Wait() && token.Error() != nil {
				log.Printf("subscribe failed: %v", token.Error())
			}
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		log.Fatalf("connect failed: %v", token.Error())
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	client.Disconnect(250)
}
