package coderws

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/beacondeck/realtime/connection/transport"
	"github.com/beacondeck/realtime/logger"
	mockserver "github.com/beacondeck/realtime/tests/server"
)

var _ transport.Transport = (*Client)(nil)

// reconnectingDelegate dials again from inside its own terminal callback,
// the way an owning client driving reconnection would
type reconnectingDelegate struct {
	*transport.RecordingDelegate
	reconnect func()
}

func (d *reconnectingDelegate) OnClose(code transport.CloseCode) {
	d.RecordingDelegate.OnClose(code)
	if d.reconnect != nil {
		reconnect := d.reconnect
		d.reconnect = nil
		reconnect()
	}
}

func TestCoderWS(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "CoderWS Suite")
}

var _ = Describe("CoderWS", Ordered, func() {
	var server *mockserver.WebsocketServer
	var client *Client
	var delegate *transport.RecordingDelegate
	var err error

	logger := logger.MockLogger(GinkgoWriter)
	ctx := context.Background()

	startConnected := func() {
		server = mockserver.NewWebsocketServer(logger)
		delegate = transport.NewRecordingDelegate()

		client, err = New(logger, server.Addr)
		Expect(err).ShouldNot(HaveOccurred(), "failed to construct client: %s", err)

		client.SetDelegate(delegate)

		err = client.Connect(ctx)
		Expect(err).ShouldNot(HaveOccurred(), "client was unable to connect: %s", err)
		Eventually(server.Connected, time.Second).Should(Receive(), "server never accepted our connection")
	}

	expectEvent := func(kind string) transport.DelegateEvent {
		event, ok := delegate.Next(2 * time.Second)
		Expect(ok).To(BeTrue(), "timed out waiting for a %s notification", kind)
		Expect(event.Kind).To(Equal(kind), "expected a %s notification but got %s", kind, event.Kind)
		return event
	}

	Context("Connection lifecycle", func() {
		BeforeEach(func() {
			startConnected()
		})

		AfterEach(func() {
			server.Shutdown()
		})

		It("opens, notifies the delegate and carries traffic both ways", func() {
			expectEvent("open")
			Expect(client.ReadyState()).To(Equal(transport.Open))

			Expect(client.Send([]byte("whooopie"))).ShouldNot(HaveOccurred())
			message := <-server.ReceivedBytes
			Expect(message).To(Equal([]byte("whooopie")))

			Expect(server.SendText("hello")).ShouldNot(HaveOccurred())
			Expect(expectEvent("message").Message).To(Equal("hello"))
		})

		It("rejects a second connect while the first is live", func() {
			expectEvent("open")
			Expect(client.Connect(ctx)).To(MatchError(transport.ErrAlreadyConnected))
		})

		It("delivers the terminal OnClose on a local disconnect", func() {
			expectEvent("open")

			Expect(client.Disconnect(transport.CloseNormalClosure, "bye")).ShouldNot(HaveOccurred())

			var closeInfo mockserver.CloseInfo
			Eventually(server.ReceivedClose, 2*time.Second).Should(Receive(&closeInfo))
			Expect(closeInfo.Code).To(Equal(1000))
			Expect(closeInfo.Reason).To(Equal("bye"))

			Expect(expectEvent("close").Code).To(Equal(transport.CloseNormalClosure))
			Expect(client.ReadyState()).To(Equal(transport.Closed))
		})

		It("delivers OnError then OnClose(abnormal) when the socket dies", func() {
			expectEvent("open")

			server.ForceClose()

			Expect(expectEvent("error").Err).To(HaveOccurred())
			Expect(expectEvent("close").Code).To(Equal(transport.CloseAbnormalClosure))
			Expect(client.ReadyState()).To(Equal(transport.Closed))
		})

		It("survives a delegate that reconnects from inside OnClose", func() {
			expectEvent("open")

			reconnectErr := make(chan error, 1)
			reconnecting := &reconnectingDelegate{
				RecordingDelegate: delegate,
				reconnect: func() {
					reconnectErr <- client.Connect(ctx)
				},
			}
			client.SetDelegate(reconnecting)

			Expect(server.Close(1000, "")).ShouldNot(HaveOccurred())
			Expect(expectEvent("close").Code).To(Equal(transport.CloseNormalClosure))

			var result error
			Eventually(reconnectErr, 2*time.Second).Should(Receive(&result))
			Expect(result).ShouldNot(HaveOccurred(), "reconnecting from inside OnClose should succeed: %s", result)
			Eventually(server.Connected, time.Second).Should(Receive(), "server never accepted the reconnection")

			expectEvent("open")
			Expect(client.ReadyState()).To(Equal(transport.Open))

			// The new connection's lifecycle must be untouched by the old
			// one's teardown
			Consistently(client.Done(), 300*time.Millisecond).ShouldNot(BeClosed())

			Expect(server.SendText("back again")).ShouldNot(HaveOccurred())
			Expect(expectEvent("message").Message).To(Equal("back again"))
		})
	})

	Context("Close code validation", func() {
		BeforeEach(func() {
			server = mockserver.NewWebsocketServer(logger)
		})

		AfterEach(func() {
			server.Shutdown()
		})

		It("rejects an invalid code before any network activity", func() {
			mockDelegate := &transport.MockDelegate{}
			mockDelegate.On("OnOpen").Return()

			client, err = New(logger, server.Addr)
			Expect(err).ShouldNot(HaveOccurred())
			client.SetDelegate(mockDelegate)

			Expect(client.Connect(ctx)).ShouldNot(HaveOccurred())
			Eventually(server.Connected, time.Second).Should(Receive())

			err = client.Disconnect(transport.CloseCode(99), "nope")

			var codeErr *transport.CloseCodeError
			Expect(errors.As(err, &codeErr)).To(BeTrue(), "expected a CloseCodeError, got: %s", err)

			Expect(client.ReadyState()).To(Equal(transport.Open))
			mockDelegate.AssertNotCalled(GinkgoT(), "OnClose")
			mockDelegate.AssertNotCalled(GinkgoT(), "OnError")
		})
	})

	Context("Endpoint validation", func() {
		It("refuses to build a client for a non-websocket scheme", func() {
			_, err = New(logger, "ftp://host/path")
			var schemeErr *transport.UnsupportedSchemeError
			Expect(errors.As(err, &schemeErr)).To(BeTrue(), "expected an UnsupportedSchemeError, got: %s", err)
		})
	})
})
