package ecsec2

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"

	"github.com/clawster/clawster/pkg/botconfig"
	"github.com/clawster/clawster/pkg/provision"
	"github.com/clawster/clawster/pkg/target"
)

// Target manages the gateway as an ECS service on EC2 container
// instances. All three AWS clients are injected.
type Target struct {
	config *Config
	ecs    ecsAPI
	ec2    ec2API
	logs   logsAPI
	waiter *provision.Waiter

	gatewayPort int
	taskDefArn  string
}

// NewTarget creates an ECS-on-EC2 deployment target.
func NewTarget(config *Config, ecsClient ecsAPI, ec2Client ec2API, logsClient logsAPI) (*Target, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ecs target config: %w", err)
	}
	if ecsClient == nil || ec2Client == nil || logsClient == nil {
		return nil, fmt.Errorf("ecs, ec2, and logs clients are required")
	}
	return &Target{
		config:      config,
		ecs:         ecsClient,
		ec2:         ec2Client,
		logs:        logsClient,
		waiter:      provision.NewWaiter(),
		gatewayPort: DefaultGatewayPort,
	}, nil
}

// Install ensures the log group, cluster, task definition, and service,
// then waits for the service to stabilize.
func (t *Target) Install(ctx context.Context, opts target.InstallOptions) target.InstallResult {
	port := opts.Port
	if port == 0 {
		port = DefaultGatewayPort
	}
	t.gatewayPort = port

	if err := t.ensureLogGroup(ctx); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure log group: %v", err)}
	}
	if err := t.ensureCluster(ctx); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure cluster: %v", err)}
	}

	taskDefArn, err := t.registerTaskDefinition(ctx, port, opts.ContainerEnv)
	if err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to register task definition: %v", err)}
	}
	t.taskDefArn = taskDefArn

	if err := t.ensureService(ctx, taskDefArn); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure service: %v", err)}
	}
	if err := t.waitServiceStable(ctx); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("service did not stabilize: %v", err)}
	}

	log.Info().
		Str("profile", t.config.ProfileName).
		Str("cluster", t.config.clusterName()).
		Msg("gateway service deployed to ecs")

	return target.InstallResult{
		Success:     true,
		Message:     fmt.Sprintf("gateway service running in cluster %s", t.config.clusterName()),
		ServiceName: t.config.serviceName(),
		InstanceID:  taskDefArn,
	}
}

// Configure registers a new task definition revision carrying the
// transformed configuration and rolls the service onto it.
func (t *Target) Configure(ctx context.Context, payload target.ConfigPayload) target.ConfigureResult {
	transformed := botconfig.Transform(payload.Config)
	rendered, err := botconfig.Render(transformed)
	if err != nil {
		return target.ConfigureResult{Success: false, Message: fmt.Sprintf("failed to render config: %v", err)}
	}

	port := t.gatewayPort
	if payload.GatewayPort > 0 {
		port = payload.GatewayPort
		t.gatewayPort = port
	}

	env := map[string]string{"OPENCLAW_CONFIG_JSON": string(rendered)}
	for key, value := range payload.Environment {
		env[key] = value
	}

	taskDefArn, err := t.registerTaskDefinition(ctx, port, env)
	if err != nil {
		return target.ConfigureResult{Success: false, Message: fmt.Sprintf("failed to register task definition: %v", err)}
	}
	t.taskDefArn = taskDefArn

	_, err = t.ecs.UpdateService(ctx, &ecs.UpdateServiceInput{
		Cluster:        aws.String(t.config.clusterName()),
		Service:        aws.String(t.config.serviceName()),
		TaskDefinition: aws.String(taskDefArn),
	})
	if err != nil {
		return target.ConfigureResult{Success: false, Message: fmt.Sprintf("failed to roll service onto new revision: %v", err)}
	}

	// The service update already triggers a new deployment.
	return target.ConfigureResult{Success: true, Message: "configuration rolled out", RequiresRestart: false}
}

// Start scales the service to one task and waits for stability.
func (t *Target) Start(ctx context.Context) error {
	if err := t.setDesiredCount(ctx, 1); err != nil {
		return err
	}
	return t.waitServiceStable(ctx)
}

// Stop scales the service to zero.
func (t *Target) Stop(ctx context.Context) error {
	return t.setDesiredCount(ctx, 0)
}

// Restart forces a new deployment without changing the desired count.
func (t *Target) Restart(ctx context.Context) error {
	_, err := t.ecs.UpdateService(ctx, &ecs.UpdateServiceInput{
		Cluster:            aws.String(t.config.clusterName()),
		Service:            aws.String(t.config.serviceName()),
		ForceNewDeployment: true,
	})
	if err != nil {
		return fmt.Errorf("failed to force new deployment: %w", err)
	}
	return t.waitServiceStable(ctx)
}

// GetStatus inspects the service's desired and running counts.
func (t *Target) GetStatus(ctx context.Context) target.Status {
	service, err := t.describeService(ctx)
	if err != nil {
		if provision.IsNotFound(err) {
			return target.Status{State: target.StateNotInstalled}
		}
		return target.Status{State: target.StateError, Error: err.Error()}
	}

	switch {
	case service.DesiredCount == 0:
		return target.Status{State: target.StateStopped, GatewayPort: t.gatewayPort}
	case service.RunningCount > 0:
		return target.Status{State: target.StateRunning, GatewayPort: t.gatewayPort}
	default:
		return target.Status{
			State:       target.StateError,
			GatewayPort: t.gatewayPort,
			Error:       fmt.Sprintf("0/%d tasks running", service.DesiredCount),
		}
	}
}

// GetLogs reads recent events from the newest log stream.
func (t *Target) GetLogs(ctx context.Context, opts target.LogOptions) []string {
	streams, err := t.logs.DescribeLogStreams(ctx, &cloudwatchlogs.DescribeLogStreamsInput{
		LogGroupName: aws.String(t.config.logGroupName()),
		OrderBy:      "LastEventTime",
		Descending:   aws.Bool(true),
		Limit:        aws.Int32(1),
	})
	if err != nil || len(streams.LogStreams) == 0 {
		return nil
	}

	tail := int32(opts.TailLines)
	if tail <= 0 {
		tail = 100
	}
	events, err := t.logs.GetLogEvents(ctx, &cloudwatchlogs.GetLogEventsInput{
		LogGroupName:  aws.String(t.config.logGroupName()),
		LogStreamName: streams.LogStreams[0].LogStreamName,
		Limit:         aws.Int32(tail),
		StartFromHead: aws.Bool(false),
	})
	if err != nil {
		return nil
	}

	sort.SliceStable(events.Events, func(i, j int) bool {
		return aws.ToInt64(events.Events[i].Timestamp) < aws.ToInt64(events.Events[j].Timestamp)
	})
	lines := make([]string, 0, len(events.Events))
	for _, event := range events.Events {
		lines = append(lines, aws.ToString(event.Message))
	}
	return lines
}

// GetEndpoint resolves the running task to its EC2 container instance's
// private IP.
func (t *Target) GetEndpoint(ctx context.Context) (target.GatewayEndpoint, error) {
	cluster := t.config.clusterName()

	tasks, err := t.ecs.ListTasks(ctx, &ecs.ListTasksInput{
		Cluster:       aws.String(cluster),
		ServiceName:   aws.String(t.config.serviceName()),
		DesiredStatus: ecstypes.DesiredStatusRunning,
	})
	if err != nil {
		return target.GatewayEndpoint{}, fmt.Errorf("failed to list tasks: %w", err)
	}
	if len(tasks.TaskArns) == 0 {
		return target.GatewayEndpoint{}, fmt.Errorf("no running gateway tasks in cluster %s", cluster)
	}

	described, err := t.ecs.DescribeTasks(ctx, &ecs.DescribeTasksInput{
		Cluster: aws.String(cluster),
		Tasks:   tasks.TaskArns[:1],
	})
	if err != nil || len(described.Tasks) == 0 {
		return target.GatewayEndpoint{}, fmt.Errorf("failed to describe task: %w", err)
	}

	instances, err := t.ecs.DescribeContainerInstances(ctx, &ecs.DescribeContainerInstancesInput{
		Cluster:            aws.String(cluster),
		ContainerInstances: []string{aws.ToString(described.Tasks[0].ContainerInstanceArn)},
	})
	if err != nil || len(instances.ContainerInstances) == 0 {
		return target.GatewayEndpoint{}, fmt.Errorf("failed to describe container instance: %w", err)
	}

	ec2Instances, err := t.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{aws.ToString(instances.ContainerInstances[0].Ec2InstanceId)},
	})
	if err != nil {
		return target.GatewayEndpoint{}, fmt.Errorf("failed to describe ec2 instance: %w", err)
	}
	for _, reservation := range ec2Instances.Reservations {
		for _, instance := range reservation.Instances {
			if ip := aws.ToString(instance.PrivateIpAddress); ip != "" {
				return target.GatewayEndpoint{Host: ip, Port: t.gatewayPort, Protocol: target.ProtocolWS}, nil
			}
		}
	}
	return target.GatewayEndpoint{}, fmt.Errorf("container instance has no private IP address")
}

// Destroy scales the service down and removes the service, cluster, and
// log group. Each step is best-effort.
func (t *Target) Destroy(ctx context.Context) error {
	cluster := t.config.clusterName()

	provision.BestEffortDelete(ctx, "service "+t.config.serviceName(), func(ctx context.Context) error {
		if err := t.setDesiredCount(ctx, 0); err != nil {
			return err
		}
		_, err := t.ecs.DeleteService(ctx, &ecs.DeleteServiceInput{
			Cluster: aws.String(cluster),
			Service: aws.String(t.config.serviceName()),
			Force:   aws.Bool(true),
		})
		return classifyAWSError("delete service", t.config.serviceName(), err)
	})
	provision.BestEffortDelete(ctx, "cluster "+cluster, func(ctx context.Context) error {
		_, err := t.ecs.DeleteCluster(ctx, &ecs.DeleteClusterInput{Cluster: aws.String(cluster)})
		return classifyAWSError("delete cluster", cluster, err)
	})
	provision.BestEffortDelete(ctx, "log group "+t.config.logGroupName(), func(ctx context.Context) error {
		_, err := t.logs.DeleteLogGroup(ctx, &cloudwatchlogs.DeleteLogGroupInput{
			LogGroupName: aws.String(t.config.logGroupName()),
		})
		return classifyAWSError("delete log group", t.config.logGroupName(), err)
	})

	log.Info().Str("profile", t.config.ProfileName).Msg("ecs gateway destroyed")
	return nil
}

func (t *Target) ensureLogGroup(ctx context.Context) error {
	_, err := provision.EnsureAssignment(ctx, "log group "+t.config.logGroupName(),
		func(ctx context.Context) (struct{}, error) {
			_, err := t.logs.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
				LogGroupName: aws.String(t.config.logGroupName()),
				Tags:         map[string]string{provision.OwnerTagKey: provision.OwnerTag},
			})
			return struct{}{}, classifyAWSError("create log group", t.config.logGroupName(), err)
		},
		nil,
	)
	return err
}

func (t *Target) ensureCluster(ctx context.Context) error {
	name := t.config.clusterName()
	_, err := provision.Ensure(ctx, "cluster "+name,
		func(ctx context.Context) (*ecstypes.Cluster, error) {
			out, err := t.ecs.DescribeClusters(ctx, &ecs.DescribeClustersInput{Clusters: []string{name}})
			if err != nil {
				return nil, classifyAWSError("describe cluster", name, err)
			}
			for _, cluster := range out.Clusters {
				if aws.ToString(cluster.Status) == "ACTIVE" {
					c := cluster
					return &c, nil
				}
			}
			return nil, provision.NewNotFound(name, fmt.Errorf("cluster not active"))
		},
		func(ctx context.Context) (*ecstypes.Cluster, error) {
			out, err := t.ecs.CreateCluster(ctx, &ecs.CreateClusterInput{
				ClusterName: aws.String(name),
				Tags: []ecstypes.Tag{
					{Key: aws.String(provision.OwnerTagKey), Value: aws.String(provision.OwnerTag)},
				},
			})
			if err != nil {
				return nil, classifyAWSError("create cluster", name, err)
			}
			return out.Cluster, nil
		},
	)
	return err
}

// registerTaskDefinition registers a new revision of the gateway task.
func (t *Target) registerTaskDefinition(ctx context.Context, port int, env map[string]string) (string, error) {
	var envPairs []ecstypes.KeyValuePair
	for key, value := range env {
		envPairs = append(envPairs, ecstypes.KeyValuePair{Name: aws.String(key), Value: aws.String(value)})
	}
	sort.Slice(envPairs, func(i, j int) bool {
		return aws.ToString(envPairs[i].Name) < aws.ToString(envPairs[j].Name)
	})

	out, err := t.ecs.RegisterTaskDefinition(ctx, &ecs.RegisterTaskDefinitionInput{
		Family:      aws.String(t.config.taskFamily()),
		NetworkMode: ecstypes.NetworkModeBridge,
		ContainerDefinitions: []ecstypes.ContainerDefinition{
			{
				Name:      aws.String("gateway"),
				Image:     aws.String(t.config.Image),
				Essential: aws.Bool(true),
				Cpu:       t.config.CPU,
				Memory:    aws.Int32(t.config.Memory),
				PortMappings: []ecstypes.PortMapping{
					{
						ContainerPort: aws.Int32(int32(port)),
						HostPort:      aws.Int32(int32(port)),
						Protocol:      ecstypes.TransportProtocolTcp,
					},
				},
				Environment: envPairs,
				LogConfiguration: &ecstypes.LogConfiguration{
					LogDriver: ecstypes.LogDriverAwslogs,
					Options: map[string]string{
						"awslogs-group":         t.config.logGroupName(),
						"awslogs-region":        t.config.Region,
						"awslogs-stream-prefix": "gateway",
					},
				},
			},
		},
	})
	if err != nil {
		return "", classifyAWSError("register task definition", t.config.taskFamily(), err)
	}
	return aws.ToString(out.TaskDefinition.TaskDefinitionArn), nil
}

func (t *Target) ensureService(ctx context.Context, taskDefArn string) error {
	name := t.config.serviceName()
	_, err := provision.Ensure(ctx, "service "+name,
		func(ctx context.Context) (*ecstypes.Service, error) {
			return t.describeService(ctx)
		},
		func(ctx context.Context) (*ecstypes.Service, error) {
			out, err := t.ecs.CreateService(ctx, &ecs.CreateServiceInput{
				Cluster:        aws.String(t.config.clusterName()),
				ServiceName:    aws.String(name),
				TaskDefinition: aws.String(taskDefArn),
				DesiredCount:   aws.Int32(1),
				LaunchType:     ecstypes.LaunchTypeEc2,
				Tags: []ecstypes.Tag{
					{Key: aws.String(provision.OwnerTagKey), Value: aws.String(provision.OwnerTag)},
				},
			})
			if err != nil {
				return nil, classifyAWSError("create service", name, err)
			}
			return out.Service, nil
		},
	)
	return err
}

// describeService returns the active service or a not-found error.
func (t *Target) describeService(ctx context.Context) (*ecstypes.Service, error) {
	name := t.config.serviceName()
	out, err := t.ecs.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(t.config.clusterName()),
		Services: []string{name},
	})
	if err != nil {
		return nil, classifyAWSError("describe service", name, err)
	}
	for _, service := range out.Services {
		if aws.ToString(service.Status) == "ACTIVE" {
			s := service
			return &s, nil
		}
	}
	return nil, provision.NewNotFound(name, fmt.Errorf("service not active"))
}

func (t *Target) setDesiredCount(ctx context.Context, count int32) error {
	_, err := t.ecs.UpdateService(ctx, &ecs.UpdateServiceInput{
		Cluster:      aws.String(t.config.clusterName()),
		Service:      aws.String(t.config.serviceName()),
		DesiredCount: aws.Int32(count),
	})
	if err != nil {
		return fmt.Errorf("failed to set desired count to %d: %w", count, err)
	}
	return nil
}

// waitServiceStable polls until the service's running count matches its
// desired count and only one deployment remains.
func (t *Target) waitServiceStable(ctx context.Context) error {
	return t.waiter.Wait(ctx, "ecs service stabilization", func(ctx context.Context) (bool, error) {
		service, err := t.describeService(ctx)
		if err != nil {
			return false, err
		}
		return service.RunningCount == service.DesiredCount && len(service.Deployments) <= 1, nil
	})
}

// classifyAWSError maps AWS API error codes onto the provisioning error
// taxonomy.
func classifyAWSError(op, resource string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ClusterNotFoundException", "ServiceNotFoundException", "ResourceNotFoundException":
			return provision.NewNotFound(resource, err)
		case "ResourceAlreadyExistsException":
			return provision.NewConflict(resource, err)
		}
	}
	return provision.NewProviderError(op, resource, err)
}
