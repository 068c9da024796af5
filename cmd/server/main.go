package main

import (
	"context"
	"crypto/tls"
	"encoding/pem"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"

	"github.com/mux2rpc/mux2rpc/registry"
	"github.com/mux2rpc/mux2rpc/rpc"
)

func main() {
	addr := flag.String("addr", ":9443", "listen address")
	hostName := flag.String("host", "", "hostname to request an autocert certificate for; disables TLS when empty")
	etcdEndpoint := flag.String("etcd", "", "etcd endpoint to register this instance against; disabled when empty")
	serviceName := flag.String("service", "echo", "service name advertised to the registry")
	flag.Parse()

	reg := rpc.NewRegistry()
	reg.Register("echo", rpc.ServiceFunc(func(method string, body []byte) ([]byte, error) {
		switch method {
		case "Echo":
			return body, nil
		default:
			return nil, rpc.NewBadStatus(rpc.Unimplemented, "unknown method "+method)
		}
	}))

	server := rpc.NewServer(reg, rpc.ServerOptions{MaxStreamsPerSecond: 500})

	ln, err := listen(*addr, *hostName)
	if err != nil {
		log.Fatalln(err)
	}

	if *etcdEndpoint != "" {
		etcdReg, err := registry.NewEtcdRegistry(registry.EtcdOptions{Endpoints: []string{*etcdEndpoint}})
		if err != nil {
			log.Fatalln(err)
		}
		if err := etcdReg.Register(*serviceName, registry.Instance{Addr: *addr}, 10); err != nil {
			log.Fatalln(err)
		}
		defer etcdReg.Deregister(*serviceName, *addr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Println("shutdown:", err)
		}
		ln.Close()
	}()

	log.Println("listening on", *addr)
	for {
		c, err := ln.Accept()
		if err != nil {
			log.Println("accept:", err)
			return
		}
		go func(c net.Conn) {
			if err := server.Serve(c); err != nil {
				log.Println("serve:", err)
			}
		}(c)
	}
}

func listen(addr, hostName string) (net.Listener, error) {
	if hostName == "" {
		return net.Listen("tcp", addr)
	}
	cert, priv, err := requestCert(hostName)
	if err != nil {
		return nil, err
	}
	pair, err := tls.X509KeyPair(cert, priv)
	if err != nil {
		return nil, err
	}
	return tls.Listen("tcp", addr, &tls.Config{Certificates: []tls.Certificate{pair}})
}

// requestCert runs the ACME HTTP-01 challenge on :80 and fetches the
// resulting certificate from autocert's cache: a throwaway http.Server
// answers the challenge via m.HTTPHandler while the manager's GetCertificate
// callback drives the exchange, then the cache entry is decoded directly.
func requestCert(hostName string) ([]byte, []byte, error) {
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(hostName),
		Cache:      autocert.DirCache("./certs"),
	}

	cfg := &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{acme.ALPNProto},
	}

	challengeSrv := &http.Server{
		Addr:      ":80",
		Handler:   m.HTTPHandler(nil),
		TLSConfig: cfg,
	}
	go challengeSrv.ListenAndServe()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = challengeSrv.Shutdown(ctx)
	}()

	// GetCertificate triggers a live ACME issuance on first use and
	// populates the cache that Cache.Get then reads back.
	if _, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: hostName}); err != nil {
		return nil, nil, err
	}

	data, err := m.Cache.Get(context.Background(), hostName)
	if err != nil {
		return nil, nil, err
	}

	priv, restBytes := pem.Decode(data)
	cert, _ := pem.Decode(restBytes)
	return pem.EncodeToMemory(cert), pem.EncodeToMemory(priv), nil
}
