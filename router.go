/*
 * Copyright (c) 2013 IBM Corp.
 *
 * All rights reserved. This program and the accompanying materials
 * are made available under the terms of the Eclipse Public License v1.0
 * which accompanies this distribution, and is available at
 * http://www.eclipse.org/legal/epl-v10.html
 */

package mqtt

import (
	"strings"
	"sync"

	"github.com/lanternmq/mqttgo/packets"
)

// route pairs a topic filter with the handler registered for it.
type route struct {
	filter  string
	handler MessageHandler
}

func (r *route) match(topic string) bool {
	return routeIncludesTopic(r.filter, topic)
}

// router maintains the ordered filter→handler table and matches each
// inbound PUBLISH against it (§4.8).
type router struct {
	sync.RWMutex
	routes         []*route
	defaultHandler MessageHandler
	messages       chan *packets.PublishPacket
	pool           *workerPool
}

func newRouter() *router {
	return &router{
		messages: make(chan *packets.PublishPacket),
	}
}

func (r *router) addRoute(filter string, handler MessageHandler) {
	r.Lock()
	defer r.Unlock()
	for _, existing := range r.routes {
		if existing.filter == filter {
			existing.handler = handler
			return
		}
	}
	r.routes = append(r.routes, &route{filter: filter, handler: handler})
}

func (r *router) deleteRoute(filter string) {
	r.Lock()
	defer r.Unlock()
	for i, existing := range r.routes {
		if existing.filter == filter {
			r.routes = append(r.routes[:i], r.routes[i+1:]...)
			return
		}
	}
}

func (r *router) setDefaultHandler(handler MessageHandler) {
	r.Lock()
	defer r.Unlock()
	r.defaultHandler = handler
}

// matchAndDispatch reads publish packets off incomingPubChan until it is
// closed, invoking every matching handler (or the default handler if none
// match) for each one. When order is true, handlers run synchronously in
// wire-arrival order; otherwise they are handed to the shared worker pool
// so the receiver loop is never blocked by application code (§5).
func (r *router) matchAndDispatch(incomingPubChan <-chan *packets.PublishPacket, order bool, c *client) {
	for pub := range incomingPubChan {
		p := pub
		work := func() {
			r.deliver(c, p)
		}
		if order || r.pool == nil {
			work()
		} else {
			r.pool.submit(work)
		}
	}
}

func (r *router) deliver(c *client, pub *packets.PublishPacket) {
	r.RLock()
	var matched []MessageHandler
	for _, rt := range r.routes {
		if rt.match(pub.TopicName) {
			matched = append(matched, rt.handler)
		}
	}
	def := r.defaultHandler
	r.RUnlock()

	ackOnce := func() { c.messageArrivedComplete(pub.MessageID, pub.Qos) }
	msg := messageFromPublish(pub, ackOnce)

	if len(matched) == 0 {
		if def != nil {
			def(c, msg)
		}
		return
	}
	for _, h := range matched {
		if h != nil {
			h(c, msg)
		}
	}
}

// routeIncludesTopic reports whether topic matches filter under MQTT's
// wildcard rules: '+' matches exactly one level, '#' matches zero or more
// trailing levels and must be the final segment, and a filter's leading
// '+'/'#' does not match a topic's leading '$' level.
func routeIncludesTopic(filter, topic string) bool {
	if filter == topic {
		return true
	}
	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")

	if len(filterParts) > 0 && (filterParts[0] == "+" || filterParts[0] == "#") {
		if len(topicParts) > 0 && strings.HasPrefix(topicParts[0], "$") {
			return false
		}
	}

	for i := 0; i < len(filterParts); i++ {
		part := filterParts[i]
		if part == "#" {
			return i == len(filterParts)-1
		}
		if i >= len(topicParts) {
			return false
		}
		if part == "+" {
			continue
		}
		if part != topicParts[i] {
			return false
		}
	}
	return len(topicParts) == len(filterParts)
}
