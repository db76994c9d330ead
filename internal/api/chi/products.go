package chi

import (
	"net/http"

	"github.com/nkkko/lista/internal/api/models"
	"github.com/nkkko/lista/internal/api/response"
	"github.com/nkkko/lista/internal/api/validation"
	"github.com/nkkko/lista/pkg/proto"
)

func (a *ChiAPI) handleSearchProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("search")

	products, err := a.content.SearchProducts(r.Context(), query)
	if err != nil {
		a.logger.Error().Err(err).Str("query", query).Msg("Product search failed")
		response.Error(w, r, err)
		return
	}
	response.WithMeta(w, r, http.StatusOK, products, models.SearchMeta{Query: query, Count: len(products)})
}

func (a *ChiAPI) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req models.ProductRequest
	if err := validation.ParseAndValidate(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	product, err := a.content.CreateProduct(r.Context(), &req.CreateProductRequest)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, product)
}

func (a *ChiAPI) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var req models.ProductRequest
	if err := validation.ParseAndValidate(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	product, err := a.content.UpdateProduct(r.Context(), id, &req.CreateProductRequest)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, product)
}

func (a *ChiAPI) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	if err := a.content.DeleteProduct(r.Context(), id); err != nil {
		response.Error(w, r, err)
		return
	}
	response.OK(w, r)
}

func (a *ChiAPI) handleListProducts(w http.ResponseWriter, r *http.Request) {
	a.withList(func(w http.ResponseWriter, r *http.Request, user *proto.User, listID proto.ID) {
		items, err := a.content.ListProducts(r.Context(), user.Id, listID)
		if err != nil {
			response.Error(w, r, err)
			return
		}
		response.JSON(w, r, http.StatusOK, items)
	})(w, r)
}

func (a *ChiAPI) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	a.withList(func(w http.ResponseWriter, r *http.Request, user *proto.User, listID proto.ID) {
		var req models.AddProductRequest
		if err := validation.ParseAndValidate(r, &req); err != nil {
			response.Error(w, r, err)
			return
		}

		item, list, err := a.content.AddProduct(r.Context(), user.Id, listID, &req.AddProductRequest)
		if err != nil {
			response.Error(w, r, err)
			return
		}

		a.publishContent(list, user, ActionAdded, item.ProductId, item)
		response.JSON(w, r, http.StatusCreated, item)
	})(w, r)
}

func (a *ChiAPI) handleUpdateListProduct(w http.ResponseWriter, r *http.Request) {
	a.withList(func(w http.ResponseWriter, r *http.Request, user *proto.User, listID proto.ID) {
		productID, err := pathID(r, "productId")
		if err != nil {
			response.Error(w, r, err)
			return
		}

		var req models.UpdateListProductRequest
		if err := validation.ParseAndValidate(r, &req); err != nil {
			response.Error(w, r, err)
			return
		}

		item, list, err := a.content.UpdateListProduct(r.Context(), user.Id, listID, productID, &req.UpdateListProductRequest)
		if err != nil {
			response.Error(w, r, err)
			return
		}

		a.publishContent(list, user, ActionUpdated, productID, item)
		response.JSON(w, r, http.StatusOK, item)
	})(w, r)
}

func (a *ChiAPI) handleRemoveListProduct(w http.ResponseWriter, r *http.Request) {
	a.withList(func(w http.ResponseWriter, r *http.Request, user *proto.User, listID proto.ID) {
		productID, err := pathID(r, "productId")
		if err != nil {
			response.Error(w, r, err)
			return
		}

		list, err := a.content.RemoveListProduct(r.Context(), user.Id, listID, productID)
		if err != nil {
			response.Error(w, r, err)
			return
		}

		a.publishContent(list, user, ActionRemoved, productID, nil)
		response.OK(w, r)
	})(w, r)
}
