package routes

import (
	"net/http"
	"strconv"

	"talentbook-middleware/catalog"
	"talentbook-middleware/config"
	"talentbook-middleware/helpers"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type productResponse struct {
	catalog.Product
	FormattedPrice string `json:"formattedPrice"`
}

// Products lists the catalog, optionally narrowed by the user_type and
// category query parameters.
func (s *Server) Products(c *gin.Context, _ config.App) {
	list := catalog.Products()
	if ut := c.Query("user_type"); ut != "" {
		list = catalog.ByUserType(list, ut)
	}
	if cat := c.Query("category"); cat != "" {
		list = catalog.ByCategory(list, cat)
	}

	resp := make([]productResponse, 0, len(list))
	for _, p := range list {
		resp = append(resp, productResponse{
			Product:        p,
			FormattedPrice: catalog.FormatPrice(p.Price, p.Currency),
		})
	}
	c.JSON(http.StatusOK, resp)
}

// SubStatus answers "true" or "false" for whether the current user holds an
// active subscription to the price given in the price query parameter.
func (s *Server) SubStatus(c *gin.Context, app config.App) {
	user, err := s.GetUserFromGin(c, app) // will set the gin response if there's an error
	if err != nil {
		return
	}
	priceID := c.Query("price")
	if _, ok := catalog.ByPriceID(priceID); !ok {
		c.Data(http.StatusBadRequest, "text/plain", []byte("invalid price value"))
		return
	}
	subscribed, err := s.payments(app).IsUserSubscribed(c.Request.Context(), user, priceID)
	if err != nil {
		s.logger().Error(
			"failed to check subscription",
			zap.String("appId", app.FusionAuthAppID),
			zap.String("userId", user.ID),
			zap.String("priceId", priceID),
			zap.Error(err),
		)
		helpers.Simple500(c)
		return
	}
	c.Data(http.StatusOK, "text/plain", []byte(strconv.FormatBool(subscribed)))
}
