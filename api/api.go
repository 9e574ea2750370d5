package api

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/exam-parser/utils/response"
)

type APIServer struct {
	app           *fiber.App
	listenAddress string
}

// NewAPIServer creates the fiber app; bodyLimit caps request bodies, including uploads
func NewAPIServer(listenAddress string, bodyLimit int) *APIServer {
	return &APIServer{
		app: fiber.New(fiber.Config{
			AppName:      "exam-parser",
			BodyLimit:    bodyLimit,
			ErrorHandler: errorHandler,
		}),
		listenAddress: listenAddress,
	}
}

// errorHandler renders errors that escape handlers in the standard response shape
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}
	if code == fiber.StatusInternalServerError {
		log.Printf("APIServer: Unhandled error on %s %s: %v", c.Method(), c.Path(), err)
		return response.InternalServerError(c, "")
	}
	return response.Error(c, code, err.Error(), "HTTP_ERROR")
}

func (s *APIServer) GetEngine() *fiber.App {
	return s.app
}

func (s *APIServer) Run() error {
	log.Println("Starting API Server")
	log.Printf("Listening on %s", s.listenAddress)

	return s.app.Listen(s.listenAddress)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *APIServer) Shutdown() error {
	return s.app.Shutdown()
}
