package grpc

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/worldkeeper/internal/common"
	"github.com/dmitrijs2005/worldkeeper/internal/server/models"
)

func instanceView(inst *models.Instance) *InstanceView {
	return &InstanceView{
		ID:         inst.ID,
		Name:       inst.Name,
		Address:    inst.Address,
		Status:     string(inst.Status),
		MachineRef: inst.MachineRef,
	}
}

func (s *GRPCServer) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {

	s.logger.Info(ctx, "Registration request", "username", req.Username)

	role, err := models.ParseRole(req.Role)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	id, err := s.users.Register(ctx, callerRole(ctx), req.Username, req.Password, role)
	if err != nil {
		s.logger.Error(ctx, err.Error())
		return nil, statusFromError(err)
	}

	s.logger.Info(ctx, "Registered", "username", req.Username, "id", id)
	return &RegisterResponse{ID: id}, nil

}

func (s *GRPCServer) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {

	token, err := s.users.Login(ctx, req.Username, req.Password)
	if err != nil {
		return nil, statusFromError(err)
	}

	return &LoginResponse{AccessToken: token}, nil

}

func (s *GRPCServer) UpdateRole(ctx context.Context, req *UpdateRoleRequest) (*UpdateRoleResponse, error) {

	role, err := models.ParseRole(req.Role)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if err := s.users.UpdateRole(ctx, req.UserID, role); err != nil {
		return nil, statusFromError(err)
	}

	return &UpdateRoleResponse{}, nil

}

func (s *GRPCServer) DeleteUser(ctx context.Context, req *DeleteUserRequest) (*DeleteUserResponse, error) {

	if err := s.users.DeleteUser(ctx, req.UserID); err != nil {
		return nil, statusFromError(err)
	}

	return &DeleteUserResponse{}, nil

}

func (s *GRPCServer) ListUsers(ctx context.Context, req *ListUsersRequest) (*ListUsersResponse, error) {

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, statusFromError(err)
	}

	resp := &ListUsersResponse{}
	for _, u := range users {
		resp.Users = append(resp.Users, &UserView{ID: u.ID, Username: u.Username, Role: string(u.Role)})
	}
	return resp, nil

}

func (s *GRPCServer) Provision(ctx context.Context, req *ProvisionRequest) (*InstanceResponse, error) {

	s.logger.Info(ctx, "Provision request", "name", req.Name)

	inst, err := s.instances.Provision(ctx, callerRole(ctx), req.Name)
	if err != nil {
		s.logger.Error(ctx, err.Error())
		return nil, statusFromError(err)
	}

	s.logger.Info(ctx, "Provisioned", "name", inst.Name, "id", inst.ID)
	return &InstanceResponse{Instance: instanceView(inst)}, nil

}

func (s *GRPCServer) Start(ctx context.Context, req *StartRequest) (*InstanceResponse, error) {

	inst, err := s.instances.Start(ctx, callerRole(ctx), req.ID)
	if err != nil {
		s.logger.Error(ctx, err.Error())
		return nil, statusFromError(err)
	}

	return &InstanceResponse{Instance: instanceView(inst)}, nil

}

func (s *GRPCServer) Stop(ctx context.Context, req *StopRequest) (*InstanceResponse, error) {

	inst, err := s.instances.Stop(ctx, callerRole(ctx), req.ID)
	if err != nil {
		s.logger.Error(ctx, err.Error())
		return nil, statusFromError(err)
	}

	return &InstanceResponse{Instance: instanceView(inst)}, nil

}

func (s *GRPCServer) Deprovision(ctx context.Context, req *DeprovisionRequest) (*DeprovisionResponse, error) {

	if err := s.instances.Deprovision(ctx, callerRole(ctx), req.ID); err != nil {
		s.logger.Error(ctx, err.Error())
		return nil, statusFromError(err)
	}

	return &DeprovisionResponse{}, nil

}

func (s *GRPCServer) GetInstance(ctx context.Context, req *GetInstanceRequest) (*InstanceResponse, error) {

	inst, err := s.instances.Get(ctx, callerRole(ctx), req.ID)
	if err != nil {
		return nil, statusFromError(err)
	}

	return &InstanceResponse{Instance: instanceView(inst)}, nil

}

func (s *GRPCServer) ListInstances(ctx context.Context, req *ListInstancesRequest) (*ListInstancesResponse, error) {

	insts, err := s.instances.List(ctx, callerRole(ctx))
	if err != nil {
		return nil, statusFromError(err)
	}

	resp := &ListInstancesResponse{}
	for _, inst := range insts {
		resp.Instances = append(resp.Instances, instanceView(inst))
	}
	return resp, nil

}

func (s *GRPCServer) ListRunning(ctx context.Context, req *ListRunningRequest) (*ListRunningResponse, error) {

	machines, err := s.instances.ListRunning(ctx, callerRole(ctx))
	if err != nil {
		return nil, statusFromError(err)
	}

	resp := &ListRunningResponse{}
	for _, m := range machines {
		resp.Machines = append(resp.Machines, &MachineView{Ref: m.Ref, Address: m.Address})
	}
	return resp, nil

}

func (s *GRPCServer) UploadSave(ctx context.Context, req *UploadSaveRequest) (*UploadSaveResponse, error) {

	tmp, err := os.CreateTemp("", "worldkeeper-save-*")
	if err != nil {
		s.logger.Error(ctx, err.Error())
		return nil, statusFromError(fmt.Errorf("%w: %v", common.ErrInternal, err))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(req.Data); err != nil {
		tmp.Close()
		s.logger.Error(ctx, err.Error())
		return nil, statusFromError(fmt.Errorf("%w: %v", common.ErrInternal, err))
	}
	if err := tmp.Close(); err != nil {
		s.logger.Error(ctx, err.Error())
		return nil, statusFromError(fmt.Errorf("%w: %v", common.ErrInternal, err))
	}

	if err := s.instances.UploadSave(ctx, callerRole(ctx), req.ID, tmp.Name()); err != nil {
		s.logger.Error(ctx, err.Error())
		return nil, statusFromError(err)
	}

	return &UploadSaveResponse{}, nil

}

func (s *GRPCServer) DownloadSave(ctx context.Context, req *DownloadSaveRequest) (*DownloadSaveResponse, error) {

	tmp, err := os.CreateTemp("", "worldkeeper-save-*")
	if err != nil {
		s.logger.Error(ctx, err.Error())
		return nil, statusFromError(fmt.Errorf("%w: %v", common.ErrInternal, err))
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	if err := s.instances.DownloadSave(ctx, callerRole(ctx), req.ID, tmp.Name()); err != nil {
		s.logger.Error(ctx, err.Error())
		return nil, statusFromError(err)
	}

	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		s.logger.Error(ctx, err.Error())
		return nil, statusFromError(fmt.Errorf("%w: %v", common.ErrInternal, err))
	}

	return &DownloadSaveResponse{Data: data}, nil

}

func (s *GRPCServer) ListSaves(ctx context.Context, req *ListSavesRequest) (*ListSavesResponse, error) {

	names, err := s.instances.ListSaves(ctx, callerRole(ctx))
	if err != nil {
		return nil, statusFromError(err)
	}

	return &ListSavesResponse{Names: names}, nil

}

func (s *GRPCServer) Ping(ctx context.Context, req *PingRequest) (*PingResponse, error) {

	return &PingResponse{Status: "OK"}, nil

}
