package main

import (
	"flag"
	"log"

	"github.com/mux2rpc/mux2rpc/registry"
	"github.com/mux2rpc/mux2rpc/rpc"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9443", "server address; ignored when -etcd and -service are set")
	method := flag.String("method", "Echo", "method name to call")
	message := flag.String("message", "hello", "request body to send")
	etcdEndpoint := flag.String("etcd", "", "etcd endpoint to resolve -service through; disabled when empty")
	serviceName := flag.String("service", "echo", "service name to resolve via etcd")
	flag.Parse()

	target := *addr
	if *etcdEndpoint != "" {
		etcdReg, err := registry.NewEtcdRegistry(registry.EtcdOptions{Endpoints: []string{*etcdEndpoint}})
		if err != nil {
			log.Fatalln(err)
		}
		defer etcdReg.Close()

		instances, err := etcdReg.Discover(*serviceName)
		if err != nil {
			log.Fatalln(err)
		}
		picker := &registry.RoundRobinPicker{}
		instance, err := picker.Pick(instances)
		if err != nil {
			log.Fatalln(err)
		}
		target = instance.Addr
	}

	client := rpc.NewClient(target, rpc.ClientOptions{})
	defer client.Close()

	resp, err := client.Send(*serviceName, *method, []byte(*message))
	if err != nil {
		log.Fatalln(err)
	}
	if resp.Status != rpc.OK {
		log.Fatalf("rpc failed: %s: %s", resp.Status, resp.Message)
	}
	log.Printf("response: %s", resp.Body)
}
