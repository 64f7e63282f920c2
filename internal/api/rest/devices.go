package rest

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/KevinKickass/OpenSimCore/internal/auth"
	"github.com/KevinKickass/OpenSimCore/internal/host"
	"github.com/KevinKickass/OpenSimCore/internal/simdevice"
	"github.com/KevinKickass/OpenSimCore/internal/types"
	"github.com/KevinKickass/OpenSimCore/internal/validate"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type valueRequest struct {
	Value any `json:"value"`
}

func readingJSON(r host.Reading) gin.H {
	return gin.H{
		"value":     types.Plain(r.Value),
		"timestamp": r.Timestamp,
		"quality":   r.Quality,
	}
}

func (s *Server) device(c *gin.Context) (*host.Instance, bool) {
	name := c.Param("name")
	inst, ok := s.lm.Host().Device(name)
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("NOT_FOUND", "device not found", gin.H{"device": name}))
		return nil, false
	}
	return inst, true
}

// authorizeChange checks the permission needed to change inst. Control
// devices need PermControl, everything else PermOperate.
func (s *Server) authorizeChange(c *gin.Context, inst *host.Instance) bool {
	if s.jwt == nil {
		return true
	}
	required := auth.PermOperate
	if strings.HasSuffix(inst.Class, simdevice.ControlClassSuffix) {
		required = auth.PermControl
	}
	if !auth.HasPermission(c, required) {
		c.JSON(http.StatusForbidden, types.NewErrorResponse("FORBIDDEN", "insufficient permissions",
			map[string]string{"required": string(required)}))
		return false
	}
	return true
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		c.JSON(http.StatusNotFound, types.NewErrorResponse("NOT_FOUND", err.Error(), nil))
	case errors.Is(err, types.ErrModeViolation):
		c.JSON(http.StatusConflict, types.NewErrorResponse("MODE_VIOLATION", err.Error(), nil))
	case errors.Is(err, types.ErrCommandFailed):
		c.JSON(http.StatusUnprocessableEntity, types.NewErrorResponse("COMMAND_FAILED", err.Error(), nil))
	default:
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("BAD_REQUEST", err.Error(), nil))
	}
}

// GET /api/v1/devices
func (s *Server) listDevices(c *gin.Context) {
	devices := s.lm.Host().Devices()

	response := make([]gin.H, 0, len(devices))
	for _, d := range devices {
		response = append(response, gin.H{
			"id":    d.ID,
			"name":  d.Name,
			"class": d.Class,
			"state": d.State().String(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"devices": response,
		"count":   len(response),
	})
}

// GET /api/v1/devices/:name
func (s *Server) exportDevice(c *gin.Context) {
	inst, ok := s.device(c)
	if !ok {
		return
	}
	doc, err := inst.Export(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("EXPORT_FAILED", err.Error(), nil))
		return
	}
	c.JSON(http.StatusOK, doc)
}

// GET /api/v1/devices/:name/interface
func (s *Server) getInterface(c *gin.Context) {
	inst, ok := s.device(c)
	if !ok {
		return
	}
	doc, err := validate.FromInstance(c.Request.Context(), inst)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("EXPORT_FAILED", err.Error(), nil))
		return
	}
	out, err := validate.Render(doc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("EXPORT_FAILED", err.Error(), nil))
		return
	}
	c.Data(http.StatusOK, "application/yaml", out)
}

// POST /api/v1/devices/:name/validate?bidirectional=true
// The body is the expected YAML interface description.
func (s *Server) validateDevice(c *gin.Context) {
	inst, ok := s.device(c)
	if !ok {
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.fail(c, err)
		return
	}
	expected, err := validate.Parse(body)
	if err != nil {
		s.fail(c, err)
		return
	}
	actual, err := validate.FromInstance(c.Request.Context(), inst)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("EXPORT_FAILED", err.Error(), nil))
		return
	}

	report := validate.Compare(expected, actual, c.Query("bidirectional") == "true")
	c.JSON(http.StatusOK, gin.H{
		"valid":    report.Valid,
		"errors":   report.Errors,
		"warnings": report.Warnings,
		"lines":    report.Lines(),
	})
}

// GET /api/v1/devices/:name/attributes
func (s *Server) readAttributes(c *gin.Context) {
	inst, ok := s.device(c)
	if !ok {
		return
	}
	readings := inst.ReadAll()
	response := make(gin.H, len(readings))
	for name, r := range readings {
		response[name] = readingJSON(r)
	}
	c.JSON(http.StatusOK, gin.H{"device": inst.Name, "attributes": response})
}

// GET /api/v1/devices/:name/attributes/:attr
func (s *Server) readAttribute(c *gin.Context) {
	inst, ok := s.device(c)
	if !ok {
		return
	}
	r, err := inst.ReadAttribute(c.Param("attr"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, readingJSON(r))
}

// PUT /api/v1/devices/:name/attributes/:attr
func (s *Server) writeAttribute(c *gin.Context) {
	inst, ok := s.device(c)
	if !ok || !s.authorizeChange(c, inst) {
		return
	}

	var req valueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, err)
		return
	}

	attr := c.Param("attr")
	if err := inst.WriteAttribute(attr, req.Value); err != nil {
		s.fail(c, err)
		return
	}

	s.logger.Info("Attribute written",
		zap.String("device", inst.Name),
		zap.String("attribute", attr))
	c.Status(http.StatusNoContent)
}

// POST /api/v1/devices/:name/commands/:cmd
// An empty body runs the command without an argument.
func (s *Server) runCommand(c *gin.Context) {
	inst, ok := s.device(c)
	if !ok || !s.authorizeChange(c, inst) {
		return
	}

	var req valueRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, err)
			return
		}
	}

	out, err := inst.RunCommand(c.Request.Context(), c.Param("cmd"), req.Value)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": types.Plain(out)})
}
