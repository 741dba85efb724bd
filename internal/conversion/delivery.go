package conversion

import "github.com/labstack/echo/v4"

type Handler interface {
	Initiate() echo.HandlerFunc
	GetStatus() echo.HandlerFunc
	Cancel() echo.HandlerFunc
	CancelMany() echo.HandlerFunc
	Download() echo.HandlerFunc
	History() echo.HandlerFunc
}
